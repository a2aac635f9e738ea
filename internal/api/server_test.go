package api_test

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	_ "modernc.org/sqlite"

	"github.com/neurasky/neurasky/internal/api"
	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/encoder"
	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/gbdt"
	"github.com/neurasky/neurasky/internal/inference"
	"github.com/neurasky/neurasky/internal/metrics"
	"github.com/neurasky/neurasky/internal/models"
	"github.com/neurasky/neurasky/internal/store"
)

var myt = time.FixedZone("MYT", 8*60*60)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

// testContext scores high risk for peak hours and low risk otherwise.
func testContext(t *testing.T) *inference.Context {
	t.Helper()
	schema := features.Current()
	enc, err := encoder.Fit(features.CategoricalColumns(), []map[string]string{
		{features.ColAirline: "MH", features.ColOrigin: "KUL", features.ColDest: "PEN", features.ColTimeOfDay: "Morning"},
	})
	if err != nil {
		t.Fatal(err)
	}
	peak := slices.Index(schema.Columns, features.ColIsPeakHour)
	c, err := inference.NewContext(&artifact.Bundle{
		ID:      "bundle-test",
		Schema:  schema,
		Encoder: enc,
		Model: &gbdt.Booster{
			NumFeatures: schema.Len(),
			Trees: []gbdt.Tree{{Nodes: []gbdt.Node{
				{Feature: peak, Threshold: 0.5, Left: 1, Right: 2},
				{Leaf: true, Value: -1},
				{Leaf: true, Value: 1},
			}}},
		},
		Metrics: artifact.Metrics{Accuracy: 0.81, DatasetSize: 1000},
	}, myt, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newServer(t *testing.T, loaded bool, st *store.Store) *api.Server {
	t.Helper()
	svc := inference.NewService(discardLogger())
	if loaded {
		svc.Swap(testContext(t))
	}
	return api.NewServer(svc, st, ":0", myt, discardLogger())
}

func do(t *testing.T, srv *api.Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestPredict(t *testing.T) {
	srv := newServer(t, true, nil)

	w := do(t, srv, "POST", "/api/predict",
		`{"origin":"KUL","destination":"PEN","airline":"MH","departure_time":"2024-03-12T08:45","flight_number":"MH1140"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	got := decode[map[string]any](t, w)
	want := map[string]any{
		"prediction":              "Delayed",
		"risk_level":              "High",
		"route":                   "KUL → PEN",
		"distance_km":             325.0,
		"flight_number":           "MH1140",
		"model_version":           "bundle-test",
		"estimated_delay_minutes": 41.0,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	factors, _ := got["factors"].([]any)
	if len(factors) != 1 || factors[0] != inference.FactorPeakHour {
		t.Errorf("factors = %v, want [%s]", got["factors"], inference.FactorPeakHour)
	}
	pd, _ := got["probability_delayed"].(float64)
	po, _ := got["probability_ontime"].(float64)
	if pd <= 0.6 || pd > 1 || abs(pd+po-1) > 1e-9 {
		t.Errorf("probabilities = %v / %v", pd, po)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestPredict_EmptyFactorsIsArray(t *testing.T) {
	srv := newServer(t, true, nil)
	w := do(t, srv, "POST", "/api/predict", `{"origin":"PEN","destination":"KUL","departure_time":"2024-03-13T14:00:00+08:00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"factors":[]`) {
		t.Errorf("body = %s, want empty factors array", w.Body.String())
	}
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name   string
		loaded bool
		body   string
		status int
	}{
		{"missing destination", true, `{"origin":"KUL"}`, http.StatusBadRequest},
		{"invalid json", true, `{"origin":`, http.StatusBadRequest},
		{"bad departure", true, `{"origin":"KUL","destination":"PEN","departure_time":"tomorrow"}`, http.StatusBadRequest},
		{"no model", false, `{"origin":"KUL","destination":"PEN"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.loaded, nil)
			w := do(t, srv, "POST", "/api/predict", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			got := decode[map[string]string](t, w)
			if got["error"] == "" {
				t.Errorf("body = %s, want error field", w.Body.String())
			}
		})
	}
}

func TestParseDeparture(t *testing.T) {
	now := time.Date(2024, 3, 12, 1, 0, 0, 0, time.UTC) // 09:00 MYT
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"2024-03-12T08:45:00Z", time.Date(2024, 3, 12, 8, 45, 0, 0, time.UTC)},
		{"2024-03-12T08:45", time.Date(2024, 3, 12, 8, 45, 0, 0, myt)},
		{"2024-03-12 17:30", time.Date(2024, 3, 12, 17, 30, 0, 0, myt)},
		{"18:15", time.Date(2024, 3, 12, 18, 15, 0, 0, myt)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := api.ParseDeparture(tt.in, now, myt)
			if err != nil {
				t.Fatalf("ParseDeparture(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDeparture(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := api.ParseDeparture("25:99", now, myt); err == nil {
		t.Error("ParseDeparture(25:99) should fail")
	}
}

func TestForecastEndpoint(t *testing.T) {
	srv := newServer(t, true, nil)

	w := do(t, srv, "GET", "/api/forecast?origin=kul&destination=pen", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Airline     string `json:"airline"`
		Forecast    []struct {
			Time        string  `json:"time"`
			Probability float64 `json:"probability"`
			RiskLevel   string  `json:"risk_level"`
		} `json:"forecast"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Origin != "KUL" || resp.Destination != "PEN" || resp.Airline != "MH" {
		t.Errorf("header fields = %+v", resp)
	}
	if len(resp.Forecast) != 13 {
		t.Fatalf("len(forecast) = %d, want 13", len(resp.Forecast))
	}
	for _, pt := range resp.Forecast {
		if len(pt.Time) != 5 || pt.Time[2] != ':' || !strings.HasSuffix(pt.Time, ":00") {
			t.Errorf("time = %q, want HH:00", pt.Time)
		}
		if pt.RiskLevel != "Low" && pt.RiskLevel != "High" {
			t.Errorf("risk_level = %q", pt.RiskLevel)
		}
	}
}

func TestForecastEndpoint_Errors(t *testing.T) {
	if w := do(t, newServer(t, true, nil), "GET", "/api/forecast?origin=KUL", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing destination: status = %d, want 400", w.Code)
	}
	before := testutil.ToFloat64(metrics.UnavailableTotal)
	if w := do(t, newServer(t, false, nil), "GET", "/api/forecast?origin=KUL&destination=PEN", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no model: status = %d, want 503", w.Code)
	}
	if got := testutil.ToFloat64(metrics.UnavailableTotal) - before; got != 1 {
		t.Errorf("unavailable counter grew by %v, want 1", got)
	}
}

func TestModelEndpoint(t *testing.T) {
	w := do(t, newServer(t, true, nil), "GET", "/api/model", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		BundleID      string   `json:"bundle_id"`
		SchemaVersion string   `json:"schema_version"`
		Columns       []string `json:"columns"`
		Metrics       struct {
			Accuracy float64 `json:"accuracy"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.BundleID != "bundle-test" || resp.SchemaVersion != features.SchemaVersion {
		t.Errorf("resp = %+v", resp)
	}
	if !slices.Equal(resp.Columns, features.Current().Columns) {
		t.Errorf("columns = %v", resp.Columns)
	}
	if resp.Metrics.Accuracy != 0.81 {
		t.Errorf("accuracy = %v, want 0.81", resp.Metrics.Accuracy)
	}

	if w := do(t, newServer(t, false, nil), "GET", "/api/model", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no model: status = %d, want 503", w.Code)
	}
}

func TestRoutesEndpoint(t *testing.T) {
	w := do(t, newServer(t, false, nil), "GET", "/api/routes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Routes           []features.RouteDistance `json:"routes"`
		DomesticAirports []string                 `json:"domestic_airports"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Routes) != len(features.KnownRoutes()) || len(resp.DomesticAirports) != 17 {
		t.Errorf("routes = %d, domestic = %d", len(resp.Routes), len(resp.DomesticAirports))
	}
}

func TestHealthEndpoint(t *testing.T) {
	st := setupTestStore(t)

	w := do(t, newServer(t, true, st), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	health := decode[api.HealthStatus](t, w)
	if health.Status != "ok" || !health.ModelLoaded || health.BundleID != "bundle-test" {
		t.Errorf("health = %+v", health)
	}
	if health.Records == nil || *health.Records != 0 {
		t.Errorf("records = %v, want 0", health.Records)
	}

	w = do(t, newServer(t, false, nil), "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", w.Code)
	}
	if health := decode[api.HealthStatus](t, w); health.Status != "degraded" || health.ModelLoaded {
		t.Errorf("degraded health = %+v", health)
	}
}

func TestTrainingRunsEndpoint(t *testing.T) {
	st := setupTestStore(t)
	for i, id := range []string{"a", "b", "c"} {
		if _, err := st.InsertTrainingRun(models.TrainingRun{
			BundleID:      id,
			SchemaVersion: features.SchemaVersion,
			TrainedAt:     time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
			ROCAUC:        0.8,
		}); err != nil {
			t.Fatal(err)
		}
	}

	w := do(t, newServer(t, true, st), "GET", "/api/training-runs?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	runs := decode[[]map[string]any](t, w)
	if len(runs) != 2 || runs[0]["bundle_id"] != "c" {
		t.Errorf("runs = %v", runs)
	}

	// Without a store the history endpoints are not mounted.
	if w := do(t, newServer(t, true, nil), "GET", "/api/training-runs", ""); w.Code != http.StatusNotFound {
		t.Errorf("no store: status = %d, want 404", w.Code)
	}
}

func TestIngestRunsEndpoint(t *testing.T) {
	st := setupTestStore(t)
	run, err := st.StartIngestRun("dir", "/data")
	if err != nil {
		t.Fatal(err)
	}
	run.Success = true
	run.RecordsStored = sql.NullInt64{Int64: 12, Valid: true}
	if err := st.CompleteIngestRun(run); err != nil {
		t.Fatal(err)
	}

	w := do(t, newServer(t, true, st), "GET", "/api/ingest-runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	runs := decode[[]map[string]any](t, w)
	if len(runs) != 1 || runs[0]["records_stored"] != 12.0 || runs[0]["success"] != true {
		t.Errorf("runs = %v", runs)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, true, nil)
	do(t, srv, "POST", "/api/predict", `{"origin":"KUL","destination":"PEN"}`)

	w := do(t, srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "neurasky_predictions_total") {
		t.Error("expected neurasky_predictions_total in /metrics output")
	}
}
