package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurasky_predictions_total",
			Help: "Total scored predictions by risk level",
		},
		[]string{"risk_level"},
	)

	PredictionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neurasky_prediction_latency_seconds",
			Help:    "Time to derive, encode and score one query",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025},
		},
	)

	UnavailableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neurasky_unavailable_total",
			Help: "Scoring calls rejected because no artifact bundle is loaded",
		},
	)

	UnknownCategories = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurasky_unknown_categories_total",
			Help: "Categorical values not seen during training, by column",
		},
		[]string{"column"},
	)

	SchemaDriftFills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurasky_schema_drift_fills_total",
			Help: "Schema columns filled with the neutral value, by column",
		},
		[]string{"column"},
	)

	ArtifactLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurasky_artifact_loads_total",
			Help: "Artifact bundle load attempts by status",
		},
		[]string{"status"},
	)

	ModelAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neurasky_model_available",
			Help: "1 when an artifact bundle is loaded and serving, 0 otherwise",
		},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurasky_training_runs_total",
			Help: "Training pipeline runs by status",
		},
		[]string{"status"},
	)

	DatasetFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurasky_dataset_fetches_total",
			Help: "Dataset file fetches by source kind and status",
		},
		[]string{"source", "status"},
	)

	DatasetFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neurasky_dataset_fetch_latency_seconds",
			Help:    "Dataset fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neurasky_records_ingested_total",
			Help: "Flight records parsed from dataset files",
		},
		[]string{"source"},
	)
)
