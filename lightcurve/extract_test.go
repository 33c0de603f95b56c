package lightcurve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"epicflow/config"
	"epicflow/internal/model"
	"epicflow/internal/region"
	"epicflow/internal/sas"
)

// stubRunner records invocations and serves canned tool reports.
type stubRunner struct {
	calls  []string
	stdout map[string]string
}

func (r *stubRunner) Run(ctx context.Context, tool string, args ...string) (*sas.Result, error) {
	r.calls = append(r.calls, tool)
	return &sas.Result{Stdout: r.stdout[tool]}, nil
}

func newStubRunner() *stubRunner {
	return &stubRunner{stdout: map[string]string{
		"ecoordconv":     " Im_X: 13225.5 Im_Y: 27412.8\n",
		"eregionanalyse": "eregionanalyse:- analysing region\n optimum radius: 320.0\n",
		"ebkgreg":        "background region: circle(13500.0,27000.0,320.0)\n",
		"lcstats": ` Chi-Square Prob of constancy   0.3173E-05
 Kolm.-Smir. Prob of constancy  0.1200E-03
`,
	}}
}

func newFilteredObservation(t *testing.T) model.Observation {
	t.Helper()
	obs := model.NewObservation(t.TempDir(), "0804670301")
	if err := os.MkdirAll(obs.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{
		obs.RawEventFile(config.PN),
		obs.CleanEventFile(config.PN),
		obs.GTIFile(config.PN),
		obs.ImageFile(config.PN),
	} {
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	detections := `# detected candidates
circle 150.025 -5.3333 20 "3"
circle 151.100 -5.4000 12 "7"
`
	if err := os.WriteFile(obs.DetectionRegions(), []byte(detections), 0644); err != nil {
		t.Fatal(err)
	}
	catalog := `circle(13225.5,27412.8,400.0)
circle(15000.0,26000.0,250.0)
`
	if err := os.WriteFile(obs.SourceCatalog(), []byte(catalog), 0644); err != nil {
		t.Fatal(err)
	}
	return obs
}

func testParams(obs model.Observation, t *testing.T) Params {
	t.Helper()
	spec, err := config.LookupInstrument("PN")
	if err != nil {
		t.Fatal(err)
	}
	return Params{
		Observation: obs,
		Instrument:  spec,
		CandidateID: "3",
		Detection: model.DetectionParams{
			DetectionLevel: 8,
			TimeWindow:     100,
			GoodTimeRatio:  0.9,
			BoxSize:        3,
		},
		ScriptsDir: "/opt/scripts",
	}
}

func newTestStage(runner *stubRunner) *Stage {
	stage := NewStage(runner)
	stage.frameTime = func(string) (float64, error) { return 0.074, nil }
	return stage
}

func TestRunExtractsCandidate(t *testing.T) {
	obs := newFilteredObservation(t)
	runner := newStubRunner()
	stage := newTestStage(runner)

	res, err := stage.Run(context.Background(), testParams(obs, t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"ecoordconv", "eregionanalyse", "evselect", "ebkgreg",
		"evselect", "evselect", "evselect", "evselect",
		"epiclccorr", "lcstats", "python3",
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("tool calls = %v, want %v", runner.calls, want)
	}
	for i := range want {
		if runner.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, runner.calls[i], want[i])
		}
	}

	if res.SourceName != "J100006-051959" {
		t.Errorf("source name = %s, want J100006-051959", res.SourceName)
	}
	if res.Observation != "0804670301" || res.CandidateID != "3" || res.Instrument != config.PN {
		t.Errorf("result identity fields wrong: %+v", res)
	}
	if res.PChiSquare != 0.3173e-05 || res.PKolmogorov != 0.1200e-03 {
		t.Errorf("probabilities = %g, %g", res.PChiSquare, res.PKolmogorov)
	}

	outDir := obs.LightcurveDir(100, config.PN, "3")
	info, err := os.ReadFile(filepath.Join(outDir, "regions.txt"))
	if err != nil {
		t.Fatalf("read region description: %v", err)
	}
	for _, needle := range []string{"source ", "background ", "circle(13500.0,27000.0,320.0)", "elapsed "} {
		if !strings.Contains(string(info), needle) {
			t.Errorf("region description missing %q: %q", needle, info)
		}
	}
	stats, err := os.ReadFile(filepath.Join(outDir, "lcstats.log"))
	if err != nil {
		t.Fatalf("read statistics log: %v", err)
	}
	if !strings.Contains(string(stats), "Chi-Square") {
		t.Errorf("statistics log missing report: %q", stats)
	}
}

func TestRunReusesSourcelessFile(t *testing.T) {
	obs := newFilteredObservation(t)
	if err := os.WriteFile(obs.SourcelessEventFile(config.PN), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := newStubRunner()
	stage := newTestStage(runner)
	if _, err := stage.Run(context.Background(), testParams(obs, t)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var evselects int
	for _, c := range runner.calls {
		if c == "evselect" {
			evselects++
		}
	}
	if evselects != 4 {
		t.Errorf("existing sourceless file must skip its build, got %d evselect calls", evselects)
	}
}

func TestRunUnknownCandidate(t *testing.T) {
	obs := newFilteredObservation(t)
	runner := newStubRunner()
	stage := newTestStage(runner)

	p := testParams(obs, t)
	p.CandidateID = "99"
	_, err := stage.Run(context.Background(), p)
	if err == nil {
		t.Fatal("expected error for unknown candidate")
	}
	var nf *region.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("no tool may run for an unknown candidate: %v", runner.calls)
	}
	if _, err := os.Stat(obs.LightcurveDir(100, config.PN, "99")); !os.IsNotExist(err) {
		t.Error("unknown candidate must not leave an output directory")
	}
}

func TestRunMissingFilteredProducts(t *testing.T) {
	obs := model.NewObservation(t.TempDir(), "0804670301")
	if err := os.MkdirAll(obs.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(obs.DetectionRegions(), []byte(`circle 150.025 -5.3333 20 "3"`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := newStubRunner()
	stage := newTestStage(runner)
	if _, err := stage.Run(context.Background(), testParams(obs, t)); err == nil {
		t.Fatal("expected error when filtering has not run")
	}
	if len(runner.calls) != 0 {
		t.Errorf("no tool may run without filtered products: %v", runner.calls)
	}
}
