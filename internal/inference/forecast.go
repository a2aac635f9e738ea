package inference

import (
	"iter"
	"time"

	"github.com/neurasky/neurasky/internal/risk"
)

const (
	ForecastHorizon = 24 * time.Hour
	ForecastStep    = 2 * time.Hour
)

// ForecastPoints is the number of points one forecast yields.
const ForecastPoints = int(ForecastHorizon/ForecastStep) + 1

type ForecastPoint struct {
	Time        string     `json:"time"`
	Departure   time.Time  `json:"departure"`
	Probability float64    `json:"probability"`
	RiskLevel   risk.Level `json:"risk_level"`
}

// Forecast scores q at every ForecastStep from the top of the current hour
// through ForecastHorizon. q.DepartureTime is ignored. The sequence is lazy
// and may be ranged over more than once; it stops at the first error.
func (c *Context) Forecast(q Query, now time.Time) (iter.Seq2[ForecastPoint, error], error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	local := now.In(c.loc)
	base := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, c.loc)

	return func(yield func(ForecastPoint, error) bool) {
		for i := range ForecastPoints {
			at := base.Add(time.Duration(i) * ForecastStep)
			pq := q
			pq.DepartureTime = at
			pred, err := c.Score(pq, now)
			if err != nil {
				yield(ForecastPoint{}, err)
				return
			}
			pt := ForecastPoint{
				Time:        at.Format("15:04"),
				Departure:   at,
				Probability: pred.ProbabilityDelayed,
				RiskLevel:   pred.RiskLevel,
			}
			if !yield(pt, nil) {
				return
			}
		}
	}, nil
}
