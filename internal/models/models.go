package models

import (
	"database/sql"
	"time"
)

// FlightRecord is one historical departure used for training.
type FlightRecord struct {
	ID           int64
	FlightDate   time.Time // date only, UTC midnight
	Airline      string
	FlightNumber string
	Origin       string
	Dest         string
	CRSDepTime   int // hhmm
	Distance     sql.NullFloat64
	DelayMinutes sql.NullFloat64
	Delayed      bool // DepDel15
	Source       string
	QualityFlags string // JSON array, empty when clean
	CreatedAt    time.Time
}

// ScheduledDeparture combines FlightDate and CRSDepTime in loc.
func (r FlightRecord) ScheduledDeparture(loc *time.Location) time.Time {
	y, m, d := r.FlightDate.Date()
	return time.Date(y, m, d, r.CRSDepTime/100, r.CRSDepTime%100, 0, 0, loc)
}

// TrainingRun is the registry entry written after a bundle is trained.
type TrainingRun struct {
	ID            int64
	BundleID      string
	SchemaVersion string
	TrainedAt     time.Time
	DatasetSize   int
	Accuracy      float64
	Precision     float64
	Recall        float64
	F1            float64
	ROCAUC        float64
	BestIteration int
	ArtifactDir   string
	MetricsJSON   string
	Activated     bool
}
