package writer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"epicflow/config"
	"epicflow/internal/channel"
	"epicflow/internal/model"
)

func testResult(obs, id string) model.LightcurveResult {
	return model.LightcurveResult{
		Observation:    obs,
		CandidateID:    id,
		SourceName:     "J100006-051959",
		Instrument:     config.PN,
		DetectionLevel: 8,
		TimeWindow:     100,
		PChiSquare:     3.173e-06,
		PKolmogorov:    0.00012,
	}
}

func TestWriterAppendsAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.log")
	channels := channel.NewManager(8)

	w := NewResultsWriter(path, channels.ResultsReader(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sent := []model.LightcurveResult{
		testResult("0804670301", "3"),
		testResult("0804670301", "7"),
		testResult("0123456789", "1"),
	}
	for _, r := range sent {
		channels.ResultsWriter() <- r
	}
	channels.Close()
	w.Stop()

	if got := w.Written(); got != int64(len(sent)) {
		t.Errorf("Written = %d, want %d", got, len(sent))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read results log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(sent) {
		t.Fatalf("log has %d lines, want %d", len(lines), len(sent))
	}
	for i, line := range lines {
		got, err := model.ParseResultLine(line)
		if err != nil {
			t.Fatalf("line %d unparsable: %v", i, err)
		}
		if got != sent[i] {
			t.Errorf("line %d round-trip = %+v, want %+v", i, got, sent[i])
		}
	}
}

func TestWriterAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.log")

	for _, id := range []string{"1", "2"} {
		channels := channel.NewManager(1)
		w := NewResultsWriter(path, channels.ResultsReader(), nil)
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		channels.ResultsWriter() <- testResult("0804670301", id)
		channels.Close()
		w.Stop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read results log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("log must accumulate across runs, got %d lines", len(lines))
	}
}

func TestWriterRejectsDoubleStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.log")
	channels := channel.NewManager(1)

	w := NewResultsWriter(path, channels.ResultsReader(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start must fail while running")
	}
	channels.Close()
	w.Stop()
}

func TestWriterDrainsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.log")
	channels := channel.NewManager(4)

	ctx, cancel := context.WithCancel(context.Background())
	w := NewResultsWriter(path, channels.ResultsReader(), nil)

	channels.ResultsWriter() <- testResult("0804670301", "3")
	channels.ResultsWriter() <- testResult("0804670301", "7")

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for w.Written() < 2 {
		select {
		case <-deadline:
			t.Fatalf("writer stalled, written=%d", w.Written())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	w.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read results log: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 2 {
		t.Errorf("expected 2 lines after cancel, got %d", n)
	}
}
