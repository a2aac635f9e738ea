package training

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/models"
)

var genStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testPipeline() *Pipeline {
	p := NewPipeline(slog.New(slog.NewTextHandler(io.Discard, nil)), time.UTC)
	p.Params.Rounds = 60
	p.Params.LearningRate = 0.1
	p.Params.NumLeaves = 15
	p.Params.EarlyStoppingRounds = 15
	p.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	p.NewID = func() string { return "test-bundle" }
	return p
}

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(500, 7, genStart)
	b := Generate(500, 7, genStart)
	require.Equal(t, a, b)

	c := Generate(500, 8, genStart)
	assert.NotEqual(t, a, c)
}

func TestGenerateRecordsAreWellFormed(t *testing.T) {
	recs := Generate(2000, 1, genStart)
	require.Len(t, recs, 2000)

	delayed := 0
	for _, r := range recs {
		assert.NotEqual(t, r.Origin, r.Dest)
		assert.Contains(t, genAirports, r.Origin)
		assert.Contains(t, genAirlines, r.Airline)
		assert.Equal(t, 2024, r.FlightDate.Year())
		assert.LessOrEqual(t, r.CRSDepTime/100, 23)
		assert.LessOrEqual(t, r.CRSDepTime%100, 59)
		assert.Equal(t, r.DelayMinutes.Float64 >= 15, r.Delayed)
		if known := features.EstimateDistance(r.Origin, r.Dest); known != features.DefaultDistanceKm {
			assert.Equal(t, known, r.Distance.Float64)
		} else {
			assert.GreaterOrEqual(t, r.Distance.Float64, 300.0)
			assert.LessOrEqual(t, r.Distance.Float64, 2000.0)
		}
		if r.Delayed {
			delayed++
		}
	}
	rate := float64(delayed) / float64(len(recs))
	assert.Greater(t, rate, 0.3)
	assert.Less(t, rate, 0.8)
}

func TestStratifiedSplitPreservesRatio(t *testing.T) {
	labels := make([]bool, 1000)
	for i := range 200 {
		labels[i] = true
	}
	keep, held := StratifiedSplit(labels, 0.2, rand.New(rand.NewPCG(1, 2)))
	require.Len(t, held, 200)
	require.Len(t, keep, 800)

	pos := 0
	for _, i := range held {
		if labels[i] {
			pos++
		}
	}
	assert.Equal(t, 40, pos)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, keep...), held...) {
		assert.False(t, seen[i], "index %d assigned twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 1000)
}

func TestStratifiedSplitKeepsEveryClass(t *testing.T) {
	labels := []bool{true, true, false, false, false}
	keep, held := StratifiedSplit(labels, 0.01, rand.New(rand.NewPCG(1, 2)))
	assert.Len(t, held, 2)
	assert.Len(t, keep, 3)
}

func TestClassWeights(t *testing.T) {
	labels := make([]bool, 100)
	for i := range 20 {
		labels[i] = true
	}
	neg, pos := ClassWeights(labels)
	assert.InDelta(t, 100.0/160, neg, 1e-12)
	assert.InDelta(t, 100.0/40, pos, 1e-12)
	// Weighted class totals balance.
	assert.InDelta(t, 80*neg, 20*pos, 1e-9)

	neg, pos = ClassWeights([]bool{true, true})
	assert.Equal(t, 1.0, neg)
	assert.Equal(t, 1.0, pos)
}

func TestEvaluate(t *testing.T) {
	labels := []float64{1, 1, 1, 0, 0, 0, 0, 0}
	probs := []float64{0.9, 0.7, 0.4, 0.6, 0.2, 0.1, 0.3, 0.5}

	e := Evaluate(labels, probs)
	assert.Equal(t, artifact.Confusion{TP: 2, FN: 1, FP: 1, TN: 4}, e.Confusion)
	assert.InDelta(t, 6.0/8, e.Accuracy, 1e-12)
	assert.InDelta(t, 2.0/3, e.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, e.Recall, 1e-12)
	assert.InDelta(t, 2.0/3, e.F1, 1e-12)
	assert.InDelta(t, 0.2, e.FalseAlarmRate, 1e-12)
	assert.Equal(t, e.Recall, e.DelayDetectionRate)
	assert.Greater(t, e.ROCAUC, 0.8)
}

func TestPipelineRun(t *testing.T) {
	p := testPipeline()
	recs := Generate(3000, 42, genStart)
	var rounds int
	p.Params.OnRound = func(round int, auc float64) { rounds = round }

	b, err := p.Run(context.Background(), recs)
	require.NoError(t, err)
	require.NoError(t, b.Validate())
	assert.Positive(t, rounds)

	assert.Equal(t, "test-bundle", b.ID)
	assert.Equal(t, features.Current(), b.Schema)
	assert.Equal(t, b.Schema.Len(), b.Model.NumFeatures)

	m := b.Metrics
	assert.Equal(t, 3000, m.DatasetSize)
	assert.Equal(t, 0, m.DroppedRows)
	assert.Equal(t, m.DatasetSize, m.TrainSize+m.ValidationSize+m.TestSize)
	assert.InDelta(t, 600, m.TestSize, 2)
	assert.Equal(t, m.DatasetSize, m.ClassDistribution.OnTime+m.ClassDistribution.Delayed)
	assert.Greater(t, m.ROCAUC, 0.7)
	assert.Equal(t, m.TestSize, m.Confusion.TN+m.Confusion.FP+m.Confusion.FN+m.Confusion.TP)
	require.Len(t, m.FeatureImportances, b.Schema.Len())
	for i := 1; i < len(m.FeatureImportances); i++ {
		assert.GreaterOrEqual(t, m.FeatureImportances[i-1].Gain, m.FeatureImportances[i].Gain)
	}
	assert.Nil(t, m.Params.OnRound)

	// The encoder vocabulary only contains airlines that exist in the data.
	for _, airline := range b.Encoder.Categories(features.ColAirline) {
		assert.Contains(t, genAirlines, airline)
	}
}

func TestPipelineDeterministic(t *testing.T) {
	recs := Generate(1500, 3, genStart)

	a, err := testPipeline().Run(context.Background(), recs)
	require.NoError(t, err)
	b, err := testPipeline().Run(context.Background(), recs)
	require.NoError(t, err)

	ja, err := json.Marshal(a.Model)
	require.NoError(t, err)
	jb, err := json.Marshal(b.Model)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
	assert.Equal(t, a.Metrics, b.Metrics)
}

func TestPipelineDropsUnusableRecords(t *testing.T) {
	recs := Generate(500, 5, genStart)
	recs = append(recs,
		models.FlightRecord{Airline: "MH", Origin: "KUL", Dest: "PEN", CRSDepTime: 2460, FlightDate: genStart},
		models.FlightRecord{Airline: "", Origin: "KUL", Dest: "PEN", CRSDepTime: 800, FlightDate: genStart},
		models.FlightRecord{Airline: "MH", Origin: "KUL", Dest: "PEN", CRSDepTime: 800},
	)
	b, err := testPipeline().Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Metrics.DroppedRows)
	assert.Equal(t, 500, b.Metrics.DatasetSize)
}

func TestPipelineNormalizesCodes(t *testing.T) {
	recs := Generate(500, 6, genStart)
	for i := range recs {
		recs[i].Origin = " " + strings.ToLower(recs[i].Origin)
	}
	b, err := testPipeline().Run(context.Background(), recs)
	require.NoError(t, err)
	assert.Contains(t, b.Encoder.Categories(features.ColOrigin), "KUL")
}

func TestPipelineRejectsTinyOrSingleClassData(t *testing.T) {
	_, err := testPipeline().Run(context.Background(), Generate(10, 1, genStart))
	assert.ErrorIs(t, err, ErrInsufficientData)

	recs := Generate(200, 1, genStart)
	for i := range recs {
		recs[i].Delayed = false
	}
	_, err = testPipeline().Run(context.Background(), recs)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testPipeline().Run(ctx, Generate(500, 2, genStart))
	assert.ErrorIs(t, err, context.Canceled)
}
