package config

import (
	"os"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `epicflow:
  name: "TestApp"
  version: "1.0"
archive:
  base_url: "https://archive.example/servlet/data-action-aio"
driver:
  data_dir: /tmp/obs
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Epicflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Epicflow.Name)
	}
	if cfg.Archive.Retry.MaxAttempts != 4 {
		t.Errorf("unexpected default retry attempts: %d", cfg.Archive.Retry.MaxAttempts)
	}
	if cfg.Driver.Rate != 0 {
		t.Errorf("driver rate must default to 0 (instrument defaults apply), got %v", cfg.Driver.Rate)
	}
}

func TestLoadConfigRejectsNegativeRate(t *testing.T) {
	content := `epicflow:
  name: "TestApp"
  version: "1.0"
archive:
  base_url: "https://archive.example"
driver:
  rate: -1
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatal("expected validation error for negative rate threshold")
	}
}

func TestLoadConfigRequiresToolkitInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SAS_DIR", "")
	t.Setenv("SAS_CCFPATH", "")
	path := writeTempConfig(t)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing toolkit paths in production")
	}
}

func TestLoadObservations(t *testing.T) {
	content := `observations:
- id: "0123456789"
  instruments: ["PN", "MOS1"]
- id: "0804670301"
`
	f, err := os.CreateTemp("", "obs-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	obs, err := LoadObservations(f.Name())
	if err != nil {
		t.Fatalf("LoadObservations failed: %v", err)
	}
	if len(obs.Observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs.Observations))
	}
	if obs.Observations[0].ID != "0123456789" {
		t.Errorf("unexpected id: %s", obs.Observations[0].ID)
	}
}

func TestLoadObservationsRejectsUnknownInstrument(t *testing.T) {
	content := `observations:
- id: "0123456789"
  instruments: ["RGS"]
`
	f, err := os.CreateTemp("", "obs-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := LoadObservations(f.Name()); err == nil {
		t.Fatal("expected error for unknown instrument")
	}
}
