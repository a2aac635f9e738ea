package inference

import (
	"fmt"
	"strings"
	"time"

	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/metrics"
	"github.com/neurasky/neurasky/internal/risk"
)

// DefaultAirline is used when a query names no carrier.
const DefaultAirline = "MH"

// Query is one scoring request. A zero DepartureTime means now.
type Query struct {
	Origin        string
	Destination   string
	Airline       string
	DepartureTime time.Time
	FlightNumber  string
}

func (q Query) normalize() (Query, error) {
	q.Origin = features.NormalizeCode(q.Origin)
	q.Destination = features.NormalizeCode(q.Destination)
	q.Airline = features.NormalizeCode(q.Airline)
	q.FlightNumber = strings.TrimSpace(q.FlightNumber)
	var missing []string
	if q.Origin == "" {
		missing = append(missing, "origin")
	}
	if q.Destination == "" {
		missing = append(missing, "destination")
	}
	if len(missing) > 0 {
		return q, fmt.Errorf("%w: missing %s", ErrMalformedQuery, strings.Join(missing, " and "))
	}
	if q.Airline == "" {
		q.Airline = DefaultAirline
	}
	return q, nil
}

type Prediction struct {
	Prediction            risk.Outcome `json:"prediction"`
	ProbabilityDelayed    float64      `json:"probability_delayed"`
	ProbabilityOnTime     float64      `json:"probability_ontime"`
	RiskLevel             risk.Level   `json:"risk_level"`
	EstimatedDelayMinutes int          `json:"estimated_delay_minutes"`
	Factors               []string     `json:"factors"`
	Route                 string       `json:"route"`
	DistanceKm            float64      `json:"distance_km"`
	FlightNumber          string       `json:"flight_number,omitempty"`
	Departure             time.Time    `json:"departure"`
	ModelVersion          string       `json:"model_version"`
}

// Human-readable factors, in the order they are reported.
const (
	FactorPeakHour      = "Peak hour departure"
	FactorInternational = "International route"
	FactorWeekend       = "Weekend travel"
	FactorHoliday       = "Holiday season"
)

// factorsFor reads the flags Derive already computed.
func factorsFor(v features.Vector) []string {
	factors := []string{}
	if v.IsPeakHour {
		factors = append(factors, FactorPeakHour)
	}
	if v.IsInternational {
		factors = append(factors, FactorInternational)
	}
	if v.IsWeekend {
		factors = append(factors, FactorWeekend)
	}
	if v.HolidaySeason {
		factors = append(factors, FactorHoliday)
	}
	return factors
}

// Score derives, encodes and scores q. Departure wall-clock fields are read
// in the context's location.
func (c *Context) Score(q Query, now time.Time) (Prediction, error) {
	start := time.Now()
	q, err := q.normalize()
	if err != nil {
		return Prediction{}, err
	}

	dep := q.DepartureTime
	if dep.IsZero() {
		dep = now
	}
	dep = dep.In(c.loc)

	v := features.Derive(features.Trip{
		Airline:   q.Airline,
		Origin:    q.Origin,
		Dest:      q.Destination,
		Departure: dep,
	}, now)

	p, err := c.probability(v)
	if err != nil {
		return Prediction{}, err
	}

	level := risk.Classify(p)
	metrics.PredictionsTotal.WithLabelValues(string(level)).Inc()
	metrics.PredictionLatency.Observe(time.Since(start).Seconds())

	return Prediction{
		Prediction:            risk.OutcomeFor(p),
		ProbabilityDelayed:    p,
		ProbabilityOnTime:     1 - p,
		RiskLevel:             level,
		EstimatedDelayMinutes: risk.EstimateDelayMinutes(p, v.IsPeakHour),
		Factors:               factorsFor(v),
		Route:                 q.Origin + " → " + q.Destination,
		DistanceKm:            v.Distance,
		FlightNumber:          q.FlightNumber,
		Departure:             dep,
		ModelVersion:          c.bundle.ID,
	}, nil
}

func (c *Context) probability(v features.Vector) (float64, error) {
	row, info, err := c.bundle.Schema.Row(v, c.bundle.Encoder)
	if err != nil {
		return 0, fmt.Errorf("build feature row: %w", err)
	}
	for _, col := range info.Missing {
		metrics.SchemaDriftFills.WithLabelValues(col).Inc()
	}
	for _, col := range info.Unknown {
		metrics.UnknownCategories.WithLabelValues(col).Inc()
	}
	if len(info.Unknown) > 0 {
		c.logger.Debug("unknown categories encoded as sentinel", "columns", info.Unknown)
	}

	p, err := c.bundle.Model.Predict(row)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return p, nil
}
