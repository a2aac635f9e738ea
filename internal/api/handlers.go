package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/inference"
)

type predictRequest struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	Airline       string `json:"airline"`
	DepartureTime string `json:"departure_time"`
	FlightNumber  string `json:"flight_number"`
}

// ParseDeparture accepts RFC3339, a local "2006-01-02T15:04" timestamp, or a
// bare "15:04" meaning today. Empty means now and yields the zero time.
func ParseDeparture(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("15:04", s, loc); err == nil {
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised departure_time %q", inference.ErrMalformedQuery, s)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body: %v", inference.ErrMalformedQuery, err))
		return
	}

	now := s.now()
	dep, err := ParseDeparture(req.DepartureTime, now, s.loc)
	if err != nil {
		s.writeError(w, err)
		return
	}

	pred, err := s.svc.Score(inference.Query{
		Origin:        req.Origin,
		Destination:   req.Destination,
		Airline:       req.Airline,
		DepartureTime: dep,
		FlightNumber:  req.FlightNumber,
	}, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pred)
}

type forecastResponse struct {
	Origin       string                    `json:"origin"`
	Destination  string                    `json:"destination"`
	Airline      string                    `json:"airline"`
	ModelVersion string                    `json:"model_version"`
	Forecast     []inference.ForecastPoint `json:"forecast"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := inference.Query{
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
		Airline:     q.Get("airline"),
	}

	seq, bundleID, err := s.svc.Forecast(query, s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := forecastResponse{
		Origin:       features.NormalizeCode(query.Origin),
		Destination:  features.NormalizeCode(query.Destination),
		Airline:      features.NormalizeCode(query.Airline),
		ModelVersion: bundleID,
		Forecast:     make([]inference.ForecastPoint, 0, inference.ForecastPoints),
	}
	if resp.Airline == "" {
		resp.Airline = inference.DefaultAirline
	}
	for pt, err := range seq {
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Forecast = append(resp.Forecast, pt)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type modelResponse struct {
	BundleID       string           `json:"bundle_id"`
	SchemaVersion  string           `json:"schema_version"`
	DeriverVersion string           `json:"deriver_version"`
	Columns        []string         `json:"columns"`
	Drift          features.Drift   `json:"drift"`
	LoadedAt       time.Time        `json:"loaded_at"`
	Metrics        artifact.Metrics `json:"metrics"`
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	c := s.svc.Current()
	if c == nil {
		s.writeError(w, inference.ErrArtifactUnavailable)
		return
	}
	b := c.Bundle()
	s.writeJSON(w, http.StatusOK, modelResponse{
		BundleID:       b.ID,
		SchemaVersion:  b.Schema.Version,
		DeriverVersion: features.SchemaVersion,
		Columns:        b.Schema.Columns,
		Drift:          c.Drift(),
		LoadedAt:       c.LoadedAt(),
		Metrics:        b.Metrics,
	})
}

type routesResponse struct {
	Routes            []features.RouteDistance `json:"routes"`
	DomesticAirports  []string                 `json:"domestic_airports"`
	DefaultDistanceKm float64                  `json:"default_distance_km"`
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, routesResponse{
		Routes:            features.KnownRoutes(),
		DomesticAirports:  features.DomesticAirports(),
		DefaultDistanceKm: features.DefaultDistanceKm,
	})
}

func limitParam(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}

type trainingRunView struct {
	BundleID      string    `json:"bundle_id"`
	SchemaVersion string    `json:"schema_version"`
	TrainedAt     time.Time `json:"trained_at"`
	DatasetSize   int       `json:"dataset_size"`
	Accuracy      float64   `json:"accuracy"`
	Precision     float64   `json:"precision"`
	Recall        float64   `json:"recall"`
	F1            float64   `json:"f1"`
	ROCAUC        float64   `json:"roc_auc"`
	BestIteration int       `json:"best_iteration"`
	Activated     bool      `json:"activated"`
}

func (s *Server) handleTrainingRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.TrainingRuns(limitParam(r, 20, 200))
	if err != nil {
		s.writeError(w, fmt.Errorf("list training runs: %w", err))
		return
	}
	out := make([]trainingRunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, trainingRunView{
			BundleID:      run.BundleID,
			SchemaVersion: run.SchemaVersion,
			TrainedAt:     run.TrainedAt,
			DatasetSize:   run.DatasetSize,
			Accuracy:      run.Accuracy,
			Precision:     run.Precision,
			Recall:        run.Recall,
			F1:            run.F1,
			ROCAUC:        run.ROCAUC,
			BestIteration: run.BestIteration,
			Activated:     run.Activated,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type ingestRunView struct {
	ID            int64      `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Source        string     `json:"source"`
	Location      string     `json:"location"`
	RowsParsed    int64      `json:"rows_parsed"`
	RowsDropped   int64      `json:"rows_dropped"`
	RowsFlagged   int64      `json:"rows_flagged"`
	RecordsStored int64      `json:"records_stored"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
}

func (s *Server) handleIngestRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.RecentIngestRuns(limitParam(r, 20, 200))
	if err != nil {
		s.writeError(w, fmt.Errorf("list ingest runs: %w", err))
		return
	}
	out := make([]ingestRunView, 0, len(runs))
	for _, run := range runs {
		v := ingestRunView{
			ID:            run.ID,
			StartedAt:     run.StartedAt,
			Source:        run.Source,
			Location:      run.Location,
			RowsParsed:    run.RowsParsed.Int64,
			RowsDropped:   run.RowsDropped.Int64,
			RowsFlagged:   run.RowsFlagged.Int64,
			RecordsStored: run.RecordsStored.Int64,
			Success:       run.Success,
			Error:         run.ErrorMessage.String,
		}
		if run.FinishedAt.Valid {
			v.FinishedAt = &run.FinishedAt.Time
		}
		out = append(out, v)
	}
	s.writeJSON(w, http.StatusOK, out)
}

type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	BundleID    string `json:"bundle_id,omitempty"`
	Records     *int   `json:"records,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}
	if c := s.svc.Current(); c != nil {
		health.ModelLoaded = true
		health.BundleID = c.Bundle().ID
	} else {
		health.Status = "degraded"
	}

	if s.store != nil {
		n, err := s.store.CountFlightRecords()
		if err != nil {
			health.Status = "error"
			health.Error = err.Error()
		} else {
			health.Records = &n
		}
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}
