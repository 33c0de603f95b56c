package model

import (
	"fmt"
	"strconv"
	"strings"

	"epicflow/config"
)

// LightcurveResult is the outcome of one candidate extraction run. One
// such record becomes one line of the shared results log.
type LightcurveResult struct {
	Observation    string
	CandidateID    string
	SourceName     string
	Instrument     config.Instrument
	DetectionLevel float64
	TimeWindow     float64
	PChiSquare     float64
	PKolmogorov    float64
}

// EncodeLine renders the record as the append-only results-log line:
// eight space-delimited columns.
func (r LightcurveResult) EncodeLine() string {
	return fmt.Sprintf("%s %s %s %s %g %g %g %g",
		r.Observation, r.CandidateID, r.SourceName, r.Instrument,
		r.DetectionLevel, r.TimeWindow, r.PChiSquare, r.PKolmogorov)
}

// ParseResultLine parses a results-log line back into a record by simple
// whitespace splitting.
func ParseResultLine(line string) (LightcurveResult, error) {
	fields := strings.Fields(line)
	if len(fields) != 8 {
		return LightcurveResult{}, fmt.Errorf("results line has %d fields, want 8", len(fields))
	}

	inst, err := config.LookupInstrument(fields[3])
	if err != nil {
		return LightcurveResult{}, err
	}

	nums := make([]float64, 4)
	for i, f := range fields[4:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return LightcurveResult{}, fmt.Errorf("results line field %d: %w", i+5, err)
		}
		nums[i] = v
	}

	return LightcurveResult{
		Observation:    fields[0],
		CandidateID:    fields[1],
		SourceName:     fields[2],
		Instrument:     inst.Name,
		DetectionLevel: nums[0],
		TimeWindow:     nums[1],
		PChiSquare:     nums[2],
		PKolmogorov:    nums[3],
	}, nil
}
