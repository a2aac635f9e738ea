package risk

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		p    float64
		want Level
	}{
		{0, Low},
		{0.15, Low},
		{0.3, Low},
		{0.3000001, Medium},
		{0.45, Medium},
		{0.6, Medium},
		{0.6000001, High},
		{0.99, High},
		{1, High},
	}
	for _, tt := range tests {
		if got := Classify(tt.p); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestClassifyMonotone(t *testing.T) {
	prev := Classify(0).Severity()
	for i := 1; i <= 1000; i++ {
		s := Classify(float64(i) / 1000).Severity()
		if s < prev {
			t.Fatalf("severity decreased at p=%v", float64(i)/1000)
		}
		prev = s
	}
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		p    float64
		want Outcome
	}{
		{0.2, OnTime},
		{0.5, OnTime},
		{0.5000001, Delayed},
		{0.9, Delayed},
	}
	for _, tt := range tests {
		if got := OutcomeFor(tt.p); got != tt.want {
			t.Errorf("OutcomeFor(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestEstimateDelayMinutes(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		peak bool
		want int
	}{
		{"on time", 0.4, true, 0},
		{"boundary on time", 0.5, false, 0},
		{"floor", 0.51, false, 23},
		{"off peak", 0.8, false, 36},
		{"peak", 0.8, true, 45},
		{"certain peak", 1, true, 56},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateDelayMinutes(tt.p, tt.peak); got != tt.want {
				t.Errorf("EstimateDelayMinutes(%v, %v) = %d, want %d", tt.p, tt.peak, got, tt.want)
			}
		})
	}
}

func TestEstimateDelayNeverBelowMinimumWhenDelayed(t *testing.T) {
	for i := 501; i <= 1000; i++ {
		p := float64(i) / 1000
		if got := EstimateDelayMinutes(p, false); got < MinDelayMinutes {
			t.Fatalf("EstimateDelayMinutes(%v) = %d, below %d", p, got, MinDelayMinutes)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"low", "Medium", " HIGH "} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("severe"); err == nil {
		t.Error("ParseLevel(severe) should fail")
	}
}
