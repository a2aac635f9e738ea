package features

import (
	"time"
)

type TimeOfDay string

const (
	Night     TimeOfDay = "Night"
	Morning   TimeOfDay = "Morning"
	Afternoon TimeOfDay = "Afternoon"
	Evening   TimeOfDay = "Evening"
)

// Trip is the raw input to the deriver. A zero Departure means "now".
type Trip struct {
	Airline   string
	Origin    string
	Dest      string
	Departure time.Time
}

// Vector is the pre-encoding feature vector produced by Derive.
type Vector struct {
	Month           int
	DayOfWeek       int
	CRSDepTime      int
	Airline         string
	Origin          string
	Dest            string
	Distance        float64
	Hour            int
	IsInternational bool
	IsPeakHour      bool
	IsWeekend       bool
	TimeOfDay       TimeOfDay

	// HolidaySeason feeds the human-readable factors only; it is not a
	// model column.
	HolidaySeason bool
}

func EstimateDistance(origin, dest string) float64 {
	if d, ok := routeDistances[route{origin, dest}]; ok {
		return d
	}
	if d, ok := routeDistances[route{dest, origin}]; ok {
		return d
	}
	return DefaultDistanceKm
}

// TimeOfDayFor buckets an hour (0-23) into half-open six hour ranges.
func TimeOfDayFor(hour int) TimeOfDay {
	switch {
	case hour < 6:
		return Night
	case hour < 12:
		return Morning
	case hour < 18:
		return Afternoon
	default:
		return Evening
	}
}

// IsInternational is false only when both endpoints are domestic airports.
func IsInternational(origin, dest string) bool {
	return !domesticAirports[origin] || !domesticAirports[dest]
}

func IsPeakHour(hour int) bool {
	return peakHours[hour]
}

// IsWeekend takes an ISO day of week (Monday=1 ... Sunday=7).
func IsWeekend(isoDay int) bool {
	return isoDay == 6 || isoDay == 7
}

func IsHolidaySeason(month int) bool {
	return holidayMonths[month]
}

// ISOWeekday converts a time to its ISO day of week.
func ISOWeekday(t time.Time) int {
	d := int(t.Weekday())
	if d == 0 {
		return 7
	}
	return d
}

// Derive builds the feature vector for a trip. Wall-clock fields are read in
// the departure's own location.
func Derive(trip Trip, now time.Time) Vector {
	dep := trip.Departure
	if dep.IsZero() {
		dep = now
	}
	hour, minute := dep.Hour(), dep.Minute()
	month := int(dep.Month())
	dow := ISOWeekday(dep)

	return Vector{
		Month:           month,
		DayOfWeek:       dow,
		CRSDepTime:      hour*100 + minute,
		Airline:         trip.Airline,
		Origin:          trip.Origin,
		Dest:            trip.Dest,
		Distance:        EstimateDistance(trip.Origin, trip.Dest),
		Hour:            hour,
		IsInternational: IsInternational(trip.Origin, trip.Dest),
		IsPeakHour:      IsPeakHour(hour),
		IsWeekend:       IsWeekend(dow),
		TimeOfDay:       TimeOfDayFor(hour),
		HolidaySeason:   IsHolidaySeason(month),
	}
}

// Numeric returns the vector's numeric columns keyed by column name.
func (v Vector) Numeric() map[string]float64 {
	return map[string]float64{
		ColMonth:           float64(v.Month),
		ColDayOfWeek:       float64(v.DayOfWeek),
		ColCRSDepTime:      float64(v.CRSDepTime),
		ColDistance:        v.Distance,
		ColHour:            float64(v.Hour),
		ColIsInternational: boolToFloat(v.IsInternational),
		ColIsPeakHour:      boolToFloat(v.IsPeakHour),
		ColIsWeekend:       boolToFloat(v.IsWeekend),
	}
}

// Categorical returns the vector's raw categorical values keyed by column name.
func (v Vector) Categorical() map[string]string {
	return map[string]string{
		ColAirline:   v.Airline,
		ColOrigin:    v.Origin,
		ColDest:      v.Dest,
		ColTimeOfDay: string(v.TimeOfDay),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
