package fits

import (
	"math"
	"testing"
)

func TestRoundUpFrameTime(t *testing.T) {
	cases := []struct {
		ms   float64
		want float64
	}{
		{73.4, 0.074},
		{73.36, 0.074},
		{199.1, 0.2},
		{5.0, 0.006},
	}
	for _, c := range cases {
		got := RoundUpFrameTime(c.ms)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("RoundUpFrameTime(%v) = %v, want %v", c.ms, got, c.want)
		}
	}
}

func TestRoundUpFrameTimeMonotonic(t *testing.T) {
	// The rounded value must never fall below the true frame time.
	for ms := 0.5; ms < 500; ms += 0.37 {
		got := RoundUpFrameTime(ms)
		if got < ms*0.001 {
			t.Fatalf("RoundUpFrameTime(%v) = %v below true value %v", ms, got, ms*0.001)
		}
	}
}

func TestFrameTimeMissingFile(t *testing.T) {
	if _, err := FrameTime("/nonexistent/events.fits"); err == nil {
		t.Fatal("expected error for missing event file")
	}
}
