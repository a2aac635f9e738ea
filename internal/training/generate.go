package training

import (
	"database/sql"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/models"
)

// Average delay minutes per airport and carrier used by the generator.
var (
	genAirports = map[string]float64{
		"KUL": 15, "PEN": 12, "BKI": 18, "KCH": 16, "LGK": 10,
		"JHB": 11, "SIN": 8, "BKK": 20, "HKG": 12, "DXB": 25,
	}
	genAirlines = map[string]float64{
		"MH": 14, "AK": 18, "OD": 16, "FY": 12, "SQ": 10,
		"TR": 20, "CX": 13, "EK": 22, "QR": 20, "JL": 15,
	}
	budgetCarriers = map[string]bool{"AK": true, "OD": true, "TR": true}
	monsoonMonths  = map[int]bool{11: true, 12: true, 1: true}
)

const (
	highRiskProb    = 0.75
	weatherProb     = 0.15
	weatherRiskProb = 0.40
	baseRiskProb    = 0.05
	delaySigma      = 0.5
)

// GeneratorSource tags synthetic records in the store.
const GeneratorSource = "synthetic"

// Generate produces n synthetic departures spread over the year of start.
// The output depends only on n, seed and start.
func Generate(n int, seed uint64, start time.Time) []models.FlightRecord {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	airports := sortedKeys(genAirports)
	airlines := sortedKeys(genAirlines)

	y := start.Year()
	first := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(1, 0, 0).Sub(first).Hours() / 24

	out := make([]models.FlightRecord, 0, n)
	for i := range n {
		date := first.AddDate(0, 0, rng.IntN(int(days)))
		hour, minute := rng.IntN(24), rng.IntN(60)

		origin := airports[rng.IntN(len(airports))]
		dest := origin
		for dest == origin {
			dest = airports[rng.IntN(len(airports))]
		}
		airline := airlines[rng.IntN(len(airlines))]

		distance := features.EstimateDistance(origin, dest)
		if distance == features.DefaultDistanceKm {
			distance = float64(300 + rng.IntN(1701))
		}

		p := baseRiskProb
		switch {
		case budgetCarriers[airline] || features.IsPeakHour(hour) || monsoonMonths[int(date.Month())]:
			p = highRiskProb
		case rng.Float64() < weatherProb:
			p = weatherRiskProb
		}
		delayed := rng.Float64() < p

		delay := 0.0
		if delayed {
			avg := (genAirports[origin] + genAirports[dest] + genAirlines[airline]) / 3
			delay = math.Max(15, math.Floor(math.Exp(math.Log(avg)+delaySigma*rng.NormFloat64())))
		}

		out = append(out, models.FlightRecord{
			FlightDate:   date,
			Airline:      airline,
			FlightNumber: fmt.Sprintf("%s%d", airline, 100+i%9000),
			Origin:       origin,
			Dest:         dest,
			CRSDepTime:   hour*100 + minute,
			Distance:     sql.NullFloat64{Float64: distance, Valid: true},
			DelayMinutes: sql.NullFloat64{Float64: delay, Valid: true},
			Delayed:      delay >= 15,
			Source:       GeneratorSource,
		})
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
