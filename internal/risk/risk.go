// Package risk maps delay probabilities to user-facing risk levels, outcomes
// and delay estimates.
package risk

import (
	"fmt"
	"math"
	"strings"
)

type Level string

const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

// Band edges are strict: a probability equal to an edge falls in the lower band.
const (
	MediumThreshold = 0.3
	HighThreshold   = 0.6

	// DelayedThreshold is the probability above which a flight is predicted delayed.
	DelayedThreshold = 0.5
)

func Classify(p float64) Level {
	switch {
	case p > HighThreshold:
		return High
	case p > MediumThreshold:
		return Medium
	default:
		return Low
	}
}

// Severity orders levels for comparisons: Low < Medium < High.
func (l Level) Severity() int {
	switch l {
	case Low:
		return 1
	case Medium:
		return 2
	case High:
		return 3
	}
	return 0
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

type Outcome string

const (
	OnTime  Outcome = "On-Time"
	Delayed Outcome = "Delayed"
)

func OutcomeFor(p float64) Outcome {
	if p > DelayedThreshold {
		return Delayed
	}
	return OnTime
}

const (
	// MinDelayMinutes matches the 15 minute delay definition used for labels.
	MinDelayMinutes = 15
	delayScale      = 45.0
	peakFactor      = 1.25
)

// EstimateDelayMinutes is a heuristic delay figure, not a regression output.
// On-time predictions estimate zero.
func EstimateDelayMinutes(p float64, peak bool) int {
	if OutcomeFor(p) == OnTime {
		return 0
	}
	f := 1.0
	if peak {
		f = peakFactor
	}
	return max(MinDelayMinutes, int(math.Round(p*delayScale*f)))
}
