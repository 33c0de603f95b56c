package region

import (
	"math"
	"regexp"
	"testing"
)

func TestSourceNameZeroRA(t *testing.T) {
	name := SourceName(0.0, 0.0)
	if name != "J000000_000000" {
		t.Errorf("SourceName(0,0) = %s, want J000000_000000", name)
	}
}

func TestSourceNameZeroPadding(t *testing.T) {
	// 16.28125 deg RA: 1h 5m 7.5s; the declination is 1d 5m 7.5s. Every
	// field is a single digit and must be zero padded.
	name := SourceName(16.28125, 1.0854166666666667)
	if name != "J010507_010507" {
		t.Errorf("SourceName = %s, want J010507_010507", name)
	}
}

func TestSourceNameNegativeDec(t *testing.T) {
	name := SourceName(150.025, -5.3333)
	want := "J100006-051959"
	if name != want {
		t.Errorf("SourceName = %s, want %s", name, want)
	}
}

func TestSourceNameShape(t *testing.T) {
	shape := regexp.MustCompile(`^J\d{6}[_-]\d{6}$`)
	for _, c := range []struct{ ra, dec float64 }{
		{0, 0},
		{150.025, -5.3333},
		{359.9999, 89.9999},
		{12.5, -0.0001},
	} {
		name := SourceName(c.ra, c.dec)
		if !shape.MatchString(name) {
			t.Errorf("SourceName(%v,%v) = %s does not match Jhhmmss±ddmmss", c.ra, c.dec, name)
		}
	}
}

func TestSourceNameSecondsNeverReachSixty(t *testing.T) {
	// 14.999983333... deg RA is 0h 59m 59.996s; the two-decimal rounding
	// carries the seconds to 60.00, which must clamp to the 59 field.
	coord := 14.999983333333333
	name := SourceName(coord, coord/15)
	if name != "J005959_005959" {
		t.Errorf("SourceName = %s, want J005959_005959", name)
	}
}

func TestSplitDec(t *testing.T) {
	negative, d, m, s := SplitDec(-12.5)
	if !negative {
		t.Error("expected negative sign for -12.5")
	}
	if d != 12 || m != 30 || math.Abs(s) > 1e-9 {
		t.Errorf("SplitDec(-12.5) = %d %d %v, want 12 30 0", d, m, s)
	}

	negative, _, _, _ = SplitDec(0.0)
	if negative {
		t.Error("zero declination must not be negative")
	}
}

func TestSplitRASecondsRounding(t *testing.T) {
	// 150.025 deg = 10h 0m 6.00s exactly.
	h, m, s := SplitRA(150.025)
	if h != 10 || m != 0 || math.Abs(s-6.0) > 1e-9 {
		t.Errorf("SplitRA(150.025) = %d %d %v, want 10 0 6", h, m, s)
	}

	// Seconds carry two decimal places.
	_, _, s = SplitRA(150.0251)
	if math.Abs(s-6.02) > 1e-9 {
		t.Errorf("seconds = %v, want 6.02", s)
	}
}
