package sas

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ParseImageCoords extracts image pixel coordinates from ecoordconv's
// report line (" Im_X: <x> Im_Y: <y>").
func ParseImageCoords(stdout string) (x, y float64, err error) {
	for _, line := range splitLines(stdout) {
		if !strings.Contains(line, "Im_X") {
			continue
		}
		var vals []float64
		for _, tok := range strings.Fields(line) {
			if v, perr := strconv.ParseFloat(tok, 64); perr == nil {
				vals = append(vals, v)
			}
		}
		if len(vals) >= 2 {
			return vals[0], vals[1], nil
		}
	}
	return 0, 0, fmt.Errorf("ecoordconv output missing image coordinates")
}

// ParseOptimizedRadius extracts the refined source radius from
// eregionanalyse's report.
func ParseOptimizedRadius(stdout string) (float64, error) {
	for _, line := range splitLines(stdout) {
		if strings.Contains(line, "optimum radius") || strings.Contains(line, "SASCIRCLE") {
			if v, ok := lastFloat(line); ok {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("eregionanalyse output missing optimum radius")
}

// ParseCircle parses a circular region expression of the form
// "circle(x,y,r)" or "(x,y,r) in (X,Y)" as written by ebkgreg.
func ParseCircle(expr string) (x, y, r float64, err error) {
	open := strings.IndexByte(expr, '(')
	close := strings.IndexByte(expr, ')')
	if open < 0 || close < open {
		return 0, 0, 0, fmt.Errorf("malformed circle expression %q", expr)
	}
	parts := strings.Split(expr[open+1:close], ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("circle expression %q has %d fields, want 3", expr, len(parts))
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, perr := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("circle expression %q: %w", expr, perr)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// ConstancyProbabilities is the pair of constancy probabilities reported
// by the Xronos statistics task. Both are in [0,1]; values near zero mean
// the lightcurve is inconsistent with a constant source.
type ConstancyProbabilities struct {
	ChiSquare  float64
	Kolmogorov float64
}

// ParseConstancyProbabilities extracts the chi-square and
// Kolmogorov-Smirnov probabilities of constancy from lcstats output. The
// tool prints Fortran-style exponents, which strconv accepts directly.
func ParseConstancyProbabilities(stdout string) (ConstancyProbabilities, error) {
	var probs ConstancyProbabilities
	var haveChi, haveKS bool

	for _, line := range splitLines(stdout) {
		switch {
		case strings.Contains(line, "Chi-Square") && strings.Contains(line, "Prob"):
			if v, ok := lastFloat(line); ok {
				probs.ChiSquare = v
				haveChi = true
			}
		case strings.Contains(line, "Kolm") && strings.Contains(line, "Prob"):
			if v, ok := lastFloat(line); ok {
				probs.Kolmogorov = v
				haveKS = true
			}
		}
	}

	if !haveChi || !haveKS {
		return probs, fmt.Errorf("statistics output missing constancy probabilities")
	}
	if probs.ChiSquare < 0 || probs.ChiSquare > 1 || probs.Kolmogorov < 0 || probs.Kolmogorov > 1 {
		return probs, fmt.Errorf("constancy probabilities out of range: %+v", probs)
	}
	return probs, nil
}

func splitLines(s string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// lastFloat returns the last token of the line that parses as a float.
func lastFloat(line string) (float64, bool) {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		tok := strings.TrimSuffix(fields[i], ",")
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
