package channel

import "epicflow/internal/model"

// Manager owns the buffered channel carrying extraction results from the
// pipeline workers to the single results writer.
type Manager struct {
	resultsChan chan model.LightcurveResult
}

func NewManager(bufferSize int) *Manager {
	return &Manager{
		resultsChan: make(chan model.LightcurveResult, bufferSize),
	}
}

func (m *Manager) ResultsWriter() chan<- model.LightcurveResult {
	return m.resultsChan
}

func (m *Manager) ResultsReader() <-chan model.LightcurveResult {
	return m.resultsChan
}

func (m *Manager) Close() {
	close(m.resultsChan)
}
