package sas

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	r := NewRunner(Env{}, t.TempDir(), 5*time.Second)

	res, err := r.Run(context.Background(), "sh", "-c", "echo report")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "report" {
		t.Errorf("stdout = %q, want report", res.Stdout)
	}
}

func TestRunSurfacesExitStatus(t *testing.T) {
	r := NewRunner(Env{}, t.TempDir(), 5*time.Second)

	_, err := r.Run(context.Background(), "sh", "-c", "echo broken calibration >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %T, want *ToolError", err)
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", toolErr.ExitCode)
	}
	if !strings.Contains(toolErr.Stderr, "broken calibration") {
		t.Errorf("stderr not surfaced: %q", toolErr.Stderr)
	}
	if !strings.Contains(toolErr.Error(), "broken calibration") {
		t.Errorf("message must carry the tool diagnostic: %s", toolErr)
	}
}

func TestRunKillsOnTimeout(t *testing.T) {
	r := NewRunner(Env{}, t.TempDir(), 50*time.Millisecond)

	start := time.Now()
	_, err := r.Run(context.Background(), "sh", "-c", "sleep 10")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || !toolErr.Timeout {
		t.Fatalf("error = %v, want timeout ToolError", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("hung subprocess not killed, took %s", elapsed)
	}
}

func TestEnvVars(t *testing.T) {
	env := Env{ODFDir: "/data/obs", CCFFile: "/data/obs/ccf.cif", SASDir: "/opt/sas"}

	injected := env.vars()[len(os.Environ()):]
	joined := strings.Join(injected, "\n")
	for _, want := range []string{"SAS_ODF=/data/obs", "SAS_CCF=/data/obs/ccf.cif", "SAS_DIR=/opt/sas"} {
		if !strings.Contains(joined, want) {
			t.Errorf("environment missing %s", want)
		}
	}
	if strings.Contains(joined, "HEADAS=") {
		t.Error("unset variables must not be injected")
	}
}
