package region

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"epicflow/internal/model"
)

func writeDetectionFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "detected_sources.reg")
	content := `# detected variable sources
circle 150.025 -5.3333 20 "3"
circle 10.6847 41.2690 12 "7"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write detection file: %v", err)
	}
	return path
}

func TestFindCandidate(t *testing.T) {
	path := writeDetectionFile(t)

	src, err := FindCandidate(path, "3")
	if err != nil {
		t.Fatalf("FindCandidate: %v", err)
	}
	if src.ID != "3" || src.RA != 150.025 || src.Dec != -5.3333 || src.Radius != 20 {
		t.Errorf("unexpected candidate: %+v", src)
	}
}

func TestFindCandidateNotFound(t *testing.T) {
	path := writeDetectionFile(t)

	_, err := FindCandidate(path, "99")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
	if nf.ID != "99" {
		t.Errorf("NotFoundError.ID = %s, want 99", nf.ID)
	}
}

func TestListCandidates(t *testing.T) {
	path := writeDetectionFile(t)

	sources, err := ListCandidates(path)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(sources))
	}
	if sources[0].ID != "3" || sources[1].ID != "7" {
		t.Errorf("unexpected candidate ids: %+v", sources)
	}
}

func TestParseDetectionLineMalformedCoordinates(t *testing.T) {
	if _, err := ParseDetectionLine(`circle 420.0 -5.3 20 "3"`); err == nil {
		t.Fatal("expected error for RA outside the sky")
	}
	if _, err := ParseDetectionLine(`circle 150.0 "3"`); err == nil {
		t.Fatal("expected error for missing coordinate fields")
	}
}

func TestCircleExpr(t *testing.T) {
	expr := CircleExpr(model.ExtractionRegion{X: 26188.5, Y: 27655.5, Radius: 320})
	want := "((X,Y) IN circle(26188.5,27655.5,320.0))"
	if expr != want {
		t.Errorf("CircleExpr = %s, want %s", expr, want)
	}
}

func TestExcludeExpr(t *testing.T) {
	regions := []model.ExtractionRegion{
		{X: 1, Y: 2, Radius: 3},
		{X: 4, Y: 5, Radius: 6},
	}
	expr := ExcludeExpr(regions)
	want := "!((X,Y) IN circle(1.0,2.0,3.0)) && !((X,Y) IN circle(4.0,5.0,6.0))"
	if expr != want {
		t.Errorf("ExcludeExpr = %s, want %s", expr, want)
	}

	if ExcludeExpr(nil) != "" {
		t.Error("ExcludeExpr(nil) must be empty")
	}
}

func TestParseCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.reg")
	content := `# field catalog
circle(26188.5,27655.5,320)
circle(10000.0,9000.0,280)
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	regions, err := ParseCatalog(path)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}
	if regions[0].X != 26188.5 || regions[0].Radius != 320 {
		t.Errorf("unexpected first region: %+v", regions[0])
	}
}
