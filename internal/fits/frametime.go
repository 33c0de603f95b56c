// Package fits reads the small amount of event-file metadata the pipeline
// needs directly, instead of shelling out to the toolkit for it.
package fits

import (
	"fmt"
	"math"
	"os"

	"github.com/astrogo/fitsio"
)

const frameTimeKey = "FRMTIME"

// FrameTime reads the native CCD frame-integration time from the event
// file's headers and returns it in seconds, rounded up to the next
// millisecond. This is the finest usable lightcurve bin for the
// instrument mode the file was taken in.
func FrameTime(path string) (float64, error) {
	r, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open event file: %w", err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return 0, fmt.Errorf("read FITS structure of %s: %w", path, err)
	}
	defer f.Close()

	for _, hdu := range f.HDUs() {
		card := hdu.Header().Get(frameTimeKey)
		if card == nil {
			continue
		}
		ms, err := cardFloat(card.Value)
		if err != nil {
			return 0, fmt.Errorf("%s in %s: %w", frameTimeKey, path, err)
		}
		return RoundUpFrameTime(ms), nil
	}

	return 0, fmt.Errorf("event file %s has no %s keyword", path, frameTimeKey)
}

// RoundUpFrameTime converts a frame time in milliseconds to seconds and
// rounds it up to the next millisecond. The result is never below the
// true value, so binning at it can never undersample a frame.
func RoundUpFrameTime(ms float64) float64 {
	return math.Trunc((ms*0.001+0.001)*1000) / 1000
}

func cardFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("unexpected header value type %T", v)
	}
}
