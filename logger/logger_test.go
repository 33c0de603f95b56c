package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestWithObservation(t *testing.T) {
	log := Logger()
	entry := log.WithObservation("0804670301", "PN")
	if v, ok := entry.Entry.Data["observation"]; !ok || v != "0804670301" {
		t.Fatalf("observation field missing: %v", entry.Entry.Data)
	}
	if v, ok := entry.Entry.Data["instrument"]; !ok || v != "PN" {
		t.Fatalf("instrument field missing: %v", entry.Entry.Data)
	}
}

func TestLogMetric(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.LogMetric("filtering", "observations_filtered", 1, "counter", Fields{"instrument": "PN"})

	out := buf.String()
	for _, needle := range []string{
		`"metric":"observations_filtered"`,
		`"metric_type":"counter"`,
		`"component":"filtering"`,
		`"instrument":"PN"`,
	} {
		if !strings.Contains(out, needle) {
			t.Errorf("metric entry missing %s: %s", needle, out)
		}
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}
