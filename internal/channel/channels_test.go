package channel

import (
	"testing"

	"epicflow/internal/model"
)

func TestManagerRoundTrip(t *testing.T) {
	m := NewManager(1)
	m.ResultsWriter() <- model.LightcurveResult{CandidateID: "3"}
	got := <-m.ResultsReader()
	if got.CandidateID != "3" {
		t.Errorf("unexpected result: %+v", got)
	}
	m.Close()
	if _, ok := <-m.ResultsReader(); ok {
		t.Error("expected closed channel")
	}
}
