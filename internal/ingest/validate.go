package ingest

import (
	"encoding/json"
	"math"

	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/models"
)

const (
	FlagSameEndpoints     = "same_endpoints"
	FlagDistanceMismatch  = "distance_mismatch"
	FlagDelayNegative     = "delay_negative"
	FlagDelayUnlikely     = "delay_unlikely"
	FlagDelayFlagMismatch = "delay_flag_mismatch"
)

const (
	// Record distances further than this from the route table are flagged.
	distanceTolerance = 0.25
	maxPlausibleDelay = 24 * 60
)

// ValidateRecord returns quality flags for a parsed record. Flags are
// informational; flagged records are still stored and trained on.
func ValidateRecord(r *models.FlightRecord) []string {
	var flags []string

	if r.Origin == r.Dest {
		flags = append(flags, FlagSameEndpoints)
	}

	if r.Distance.Valid {
		if known := features.EstimateDistance(r.Origin, r.Dest); known != features.DefaultDistanceKm {
			if math.Abs(r.Distance.Float64-known) > distanceTolerance*known {
				flags = append(flags, FlagDistanceMismatch)
			}
		}
	}

	if r.DelayMinutes.Valid {
		d := r.DelayMinutes.Float64
		if d < 0 {
			flags = append(flags, FlagDelayNegative)
		}
		if d > maxPlausibleDelay {
			flags = append(flags, FlagDelayUnlikely)
		}
		if (d >= 15) != r.Delayed {
			flags = append(flags, FlagDelayFlagMismatch)
		}
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
