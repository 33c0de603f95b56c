// Package region handles sky-region arithmetic the pipeline does itself:
// sexagesimal source naming, circular region expressions, and the
// detection-stage region file format.
package region

import (
	"fmt"
	"math"
)

// SplitRA decomposes a right ascension in decimal degrees into
// hours/minutes/seconds. Hours and minutes are integer truncations of the
// successive values; seconds are rounded to two decimal places.
func SplitRA(deg float64) (h, m int, s float64) {
	hours := deg / 15
	h = int(hours)
	frac := (hours - float64(h)) * 60
	m = int(frac)
	s = round2((frac - float64(m)) * 60)
	return h, m, s
}

// SplitDec decomposes a declination in decimal degrees into
// degrees/minutes/seconds of its magnitude, reporting the sign
// separately.
func SplitDec(deg float64) (negative bool, d, m int, s float64) {
	negative = deg < 0
	mag := math.Abs(deg)
	d = int(mag)
	frac := (mag - float64(d)) * 60
	m = int(frac)
	s = round2((frac - float64(m)) * 60)
	return negative, d, m, s
}

// SourceName builds the deterministic human-readable identifier
// Jhhmmss±ddmmss for a sky position. Declination carries a '-' marker
// when negative and '_' otherwise. Two sources at the same truncated
// coordinates collide; detection already deduplicates, so that is
// acceptable.
func SourceName(ra, dec float64) string {
	h, hm, hs := SplitRA(ra)
	negative, d, dm, ds := SplitDec(dec)

	marker := byte('_')
	if negative {
		marker = '-'
	}

	return fmt.Sprintf("J%02d%02d%02d%c%02d%02d%02d",
		h, hm, secondsField(hs), marker, d, dm, secondsField(ds))
}

// secondsField truncates rounded seconds to the two-digit name field.
// Seconds that round up to 60 clamp to 59 so the field stays a valid
// sexagesimal pair.
func secondsField(s float64) int {
	v := int(s)
	if v > 59 {
		v = 59
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
