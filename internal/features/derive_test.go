package features

import (
	"slices"
	"testing"
	"time"
)

func TestTimeOfDayFor(t *testing.T) {
	tests := []struct {
		hour int
		want TimeOfDay
	}{
		{0, Night},
		{5, Night},
		{6, Morning},
		{11, Morning},
		{12, Afternoon},
		{17, Afternoon},
		{18, Evening},
		{23, Evening},
	}

	for _, tt := range tests {
		if got := TimeOfDayFor(tt.hour); got != tt.want {
			t.Errorf("TimeOfDayFor(%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestTimeOfDayForPartitionsDay(t *testing.T) {
	counts := map[TimeOfDay]int{}
	for h := 0; h < 24; h++ {
		tod := TimeOfDayFor(h)
		switch tod {
		case Night, Morning, Afternoon, Evening:
			counts[tod]++
		default:
			t.Fatalf("TimeOfDayFor(%d) = %q, not a bucket", h, tod)
		}
	}
	for _, tod := range []TimeOfDay{Night, Morning, Afternoon, Evening} {
		if counts[tod] != 6 {
			t.Errorf("%s covers %d hours, want 6", tod, counts[tod])
		}
	}
}

func TestIsPeakHour(t *testing.T) {
	peak := []int{7, 8, 9, 17, 18, 19, 20}
	for h := 0; h < 24; h++ {
		want := slices.Contains(peak, h)
		if got := IsPeakHour(h); got != want {
			t.Errorf("IsPeakHour(%d) = %v, want %v", h, got, want)
		}
	}
}

func TestIsWeekend(t *testing.T) {
	for d := 1; d <= 7; d++ {
		want := d == 6 || d == 7
		if got := IsWeekend(d); got != want {
			t.Errorf("IsWeekend(%d) = %v, want %v", d, got, want)
		}
	}
}

func TestEstimateDistance(t *testing.T) {
	tests := []struct {
		name         string
		origin, dest string
		want         float64
	}{
		{"known pair", "KUL", "PEN", 325},
		{"known pair reversed", "PEN", "KUL", 325},
		{"secondary hub", "PEN", "KCH", 750},
		{"long haul", "LHR", "KUL", 10600},
		{"unknown pair", "PEN", "SIN", DefaultDistanceKm},
		{"unknown airports", "XXX", "YYY", DefaultDistanceKm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateDistance(tt.origin, tt.dest); got != tt.want {
				t.Errorf("EstimateDistance(%q, %q) = %v, want %v", tt.origin, tt.dest, got, tt.want)
			}
		})
	}
}

func TestEstimateDistanceSymmetric(t *testing.T) {
	for _, r := range KnownRoutes() {
		ab := EstimateDistance(r.Origin, r.Dest)
		ba := EstimateDistance(r.Dest, r.Origin)
		if ab != ba {
			t.Errorf("distance %s-%s = %v but %s-%s = %v", r.Origin, r.Dest, ab, r.Dest, r.Origin, ba)
		}
		if ab == DefaultDistanceKm {
			t.Errorf("known route %s-%s fell back to default", r.Origin, r.Dest)
		}
	}
}

func TestIsInternational(t *testing.T) {
	tests := []struct {
		origin, dest string
		want         bool
	}{
		{"KUL", "PEN", false},
		{"BKI", "SDK", false},
		{"KUL", "LBU", false},
		{"TGG", "IPH", false},
		{"KUL", "SIN", true},
		{"SIN", "KUL", true},
		{"BKK", "HKG", true},
		{"KUL", "ZZZ", true},
	}

	for _, tt := range tests {
		if got := IsInternational(tt.origin, tt.dest); got != tt.want {
			t.Errorf("IsInternational(%q, %q) = %v, want %v", tt.origin, tt.dest, got, tt.want)
		}
	}
}

func TestDomesticAirportsCanonicalList(t *testing.T) {
	want := []string{"AOR", "BKI", "BTU", "IPH", "JHB", "KBR", "KCH", "KUL", "LBU", "LGK", "MKZ", "MYY", "PEN", "SBW", "SDK", "TGG", "TWU"}
	if got := DomesticAirports(); !slices.Equal(got, want) {
		t.Errorf("DomesticAirports() = %v, want %v", got, want)
	}
}

func TestDeriveKulPenMorningPeak(t *testing.T) {
	loc := time.FixedZone("MYT", 8*3600)
	// Tuesday
	dep := time.Date(2024, time.March, 12, 8, 45, 0, 0, loc)

	v := Derive(Trip{Airline: "MH", Origin: "KUL", Dest: "PEN", Departure: dep}, time.Time{})

	want := Vector{
		Month:           3,
		DayOfWeek:       2,
		CRSDepTime:      845,
		Airline:         "MH",
		Origin:          "KUL",
		Dest:            "PEN",
		Distance:        325,
		Hour:            8,
		IsInternational: false,
		IsPeakHour:      true,
		IsWeekend:       false,
		TimeOfDay:       Morning,
		HolidaySeason:   false,
	}
	if v != want {
		t.Errorf("Derive() = %+v, want %+v", v, want)
	}
}

func TestDeriveFallsBackToNow(t *testing.T) {
	now := time.Date(2024, time.December, 22, 19, 5, 0, 0, time.UTC) // Sunday

	v := Derive(Trip{Airline: "AK", Origin: "KUL", Dest: "SIN"}, now)

	if v.Hour != 19 || v.CRSDepTime != 1905 {
		t.Errorf("Hour/CRSDepTime = %d/%d, want 19/1905", v.Hour, v.CRSDepTime)
	}
	if v.DayOfWeek != 7 || !v.IsWeekend {
		t.Errorf("DayOfWeek = %d, IsWeekend = %v, want 7, true", v.DayOfWeek, v.IsWeekend)
	}
	if !v.IsInternational {
		t.Error("KUL-SIN should be international")
	}
	if !v.HolidaySeason {
		t.Error("December should be holiday season")
	}
	if v.TimeOfDay != Evening {
		t.Errorf("TimeOfDay = %q, want Evening", v.TimeOfDay)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	now := time.Date(2024, time.July, 1, 7, 30, 0, 0, time.UTC)
	trip := Trip{Airline: "OD", Origin: "PEN", Dest: "BKI"}
	first := Derive(trip, now)
	for i := 0; i < 10; i++ {
		if got := Derive(trip, now); got != first {
			t.Fatalf("Derive() call %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestISOWeekday(t *testing.T) {
	monday := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		if got := ISOWeekday(monday.AddDate(0, 0, i)); got != i+1 {
			t.Errorf("ISOWeekday(%s) = %d, want %d", monday.AddDate(0, 0, i).Weekday(), got, i+1)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  kul "); got != "KUL" {
		t.Errorf("NormalizeCode = %q, want KUL", got)
	}
}
