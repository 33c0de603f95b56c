package region

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"epicflow/internal/model"
)

// NotFoundError reports that a candidate id has no record in the
// detection region file.
type NotFoundError struct {
	ID   string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("candidate %q not found in %s", e.ID, e.Path)
}

// ParseDetectionLine parses one detection-region record. Each record
// carries a double-quoted numeric id and three geometric fields: right
// ascension and declination in decimal degrees, and the detection radius
// in pixels. A leading shape token is tolerated.
func ParseDetectionLine(line string) (model.CandidateSource, error) {
	var src model.CandidateSource
	var coords []float64

	for _, tok := range strings.Fields(line) {
		if strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) > 1 {
			src.ID = strings.Trim(tok, `"`)
			continue
		}
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			coords = append(coords, v)
		}
	}

	if src.ID == "" {
		return src, fmt.Errorf("detection record %q has no quoted id", line)
	}
	if len(coords) < 3 {
		return src, fmt.Errorf("detection record %q has %d coordinate fields, want 3", line, len(coords))
	}

	src.RA = coords[0]
	src.Dec = coords[1]
	src.Radius = coords[2]

	if src.RA < 0 || src.RA >= 360 || src.Dec < -90 || src.Dec > 90 {
		return src, fmt.Errorf("detection record %q has coordinates outside the sky", line)
	}
	return src, nil
}

// FindCandidate scans the detection region file for the record with the
// given id. Absence is a *NotFoundError, distinct from a malformed file.
func FindCandidate(path, id string) (model.CandidateSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.CandidateSource{}, fmt.Errorf("open detection region file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, `"`+id+`"`) {
			continue
		}
		src, err := ParseDetectionLine(line)
		if err != nil {
			return model.CandidateSource{}, err
		}
		if src.ID == id {
			return src, nil
		}
	}
	if err := sc.Err(); err != nil {
		return model.CandidateSource{}, fmt.Errorf("read detection region file: %w", err)
	}
	return model.CandidateSource{}, &NotFoundError{ID: id, Path: path}
}

// ListCandidates reads every well-formed record in the detection region
// file. Malformed lines are skipped so one bad record cannot hide the
// rest of the field.
func ListCandidates(path string) ([]model.CandidateSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detection region file: %w", err)
	}
	defer f.Close()

	var sources []model.CandidateSource
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		src, err := ParseDetectionLine(line)
		if err != nil {
			continue
		}
		sources = append(sources, src)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read detection region file: %w", err)
	}
	return sources, nil
}

// CircleExpr renders a circular extraction region as the algebraic
// selection expression the toolkit consumes.
func CircleExpr(r model.ExtractionRegion) string {
	return fmt.Sprintf("((X,Y) IN circle(%.1f,%.1f,%.1f))", r.X, r.Y, r.Radius)
}

// ExcludeExpr renders the negation of a set of regions, used to excise
// every catalogued source from the background event file.
func ExcludeExpr(regions []model.ExtractionRegion) string {
	if len(regions) == 0 {
		return ""
	}
	parts := make([]string, len(regions))
	for i, r := range regions {
		parts[i] = "!" + CircleExpr(r)
	}
	return strings.Join(parts, " && ")
}

// ParseCatalog reads the externally supplied source catalog: one circular
// region per line in sky pixel coordinates, comments ignored.
func ParseCatalog(path string) ([]model.ExtractionRegion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source catalog: %w", err)
	}
	defer f.Close()

	var regions []model.ExtractionRegion
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var fields []float64
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == '(' || r == ')'
		}) {
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				fields = append(fields, v)
			}
		}
		if len(fields) < 3 {
			continue
		}
		regions = append(regions, model.ExtractionRegion{X: fields[0], Y: fields[1], Radius: fields[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read source catalog: %w", err)
	}
	return regions, nil
}
