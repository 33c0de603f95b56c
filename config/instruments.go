package config

import (
	"fmt"
	"strings"
)

// Instrument identifies one EPIC detector channel.
type Instrument string

const (
	PN Instrument = "PN"
	M1 Instrument = "M1"
	M2 Instrument = "M2"
)

// InstrumentSpec is the capability table entry for one detector. The
// per-instrument selection expressions, pattern ceilings and energy bands
// are fixed by the EPIC calibration and never change at runtime.
type InstrumentSpec struct {
	Name Instrument

	// FlagMask is the event quality mask used in every selection
	// expression for this detector.
	FlagMask string

	// Flare-rate curve selection: energy band above the source band where
	// only proton flares contribute.
	FlarePILow  int
	FlarePIHigh int // 0 means open-ended (PI > FlarePILow)

	// Clean event selection.
	PatternCeiling int
	PILow          int
	PIHigh         int

	// DefaultRate is the flare-rate threshold (counts/s) applied when the
	// operator supplies none.
	DefaultRate float64

	// ArchiveTag is the exposure-type token used in archive product names.
	ArchiveTag string
}

var instrumentTable = map[Instrument]InstrumentSpec{
	PN: {
		Name:           PN,
		FlagMask:       "#XMMEA_EP",
		FlarePILow:     10000,
		FlarePIHigh:    12000,
		PatternCeiling: 4,
		PILow:          500,
		PIHigh:         12000,
		DefaultRate:    0.5,
		ArchiveTag:     "PN",
	},
	M1: {
		Name:           M1,
		FlagMask:       "#XMMEA_EM",
		FlarePILow:     10000,
		PatternCeiling: 12,
		PILow:          500,
		PIHigh:         10000,
		DefaultRate:    0.35,
		ArchiveTag:     "M1",
	},
	M2: {
		Name:           M2,
		FlagMask:       "#XMMEA_EM",
		FlarePILow:     10000,
		PatternCeiling: 12,
		PILow:          500,
		PIHigh:         10000,
		DefaultRate:    0.35,
		ArchiveTag:     "M2",
	},
}

var instrumentAliases = map[string]Instrument{
	"PN":   PN,
	"EPN":  PN,
	"M1":   M1,
	"MOS1": M1,
	"M2":   M2,
	"MOS2": M2,
}

// LookupInstrument resolves a user-supplied instrument name to its
// capability table entry. MOS1/MOS2 are accepted as aliases of M1/M2.
func LookupInstrument(name string) (InstrumentSpec, error) {
	inst, ok := instrumentAliases[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return InstrumentSpec{}, fmt.Errorf("unknown instrument %q (expected PN, MOS1/M1 or MOS2/M2)", name)
	}
	return instrumentTable[inst], nil
}

// Instruments returns the capability entries for the given names, or the
// PN entry alone when none are given.
func Instruments(names []string) ([]InstrumentSpec, error) {
	if len(names) == 0 {
		return []InstrumentSpec{instrumentTable[PN]}, nil
	}
	specs := make([]InstrumentSpec, 0, len(names))
	for _, n := range names {
		spec, err := LookupInstrument(n)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// FlareExpr returns the selection expression for the 100 s binned
// flare-background rate curve.
func (s InstrumentSpec) FlareExpr() string {
	if s.FlarePIHigh > 0 {
		return fmt.Sprintf("%s && (PI in [%d:%d]) && (PATTERN==0)", s.FlagMask, s.FlarePILow, s.FlarePIHigh)
	}
	return fmt.Sprintf("%s && (PI>%d) && (PATTERN==0)", s.FlagMask, s.FlarePILow)
}

// CleanExpr returns the selection expression producing the clean event
// file, restricted to the good time intervals in gtiPath.
func (s InstrumentSpec) CleanExpr(gtiPath string) string {
	return fmt.Sprintf("%s && gti(%s,TIME) && (PATTERN<=%d) && (PI in [%d:%d])",
		s.FlagMask, gtiPath, s.PatternCeiling, s.PILow, s.PIHigh)
}
