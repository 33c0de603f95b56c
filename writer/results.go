// Package writer persists extraction results: an append-only results log
// with a single writer goroutine, an optional SQLite index, and an
// optional S3 product archiver.
package writer

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"epicflow/internal/model"
	"epicflow/internal/store"
	"epicflow/logger"
)

// ResultsWriter is the single owner of the shared results log. All
// pipeline workers send their records through one channel; only this
// writer appends to the file, so concurrent observations can never
// interleave lines.
type ResultsWriter struct {
	path    string
	results <-chan model.LightcurveResult
	index   *store.Index
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	written int64
}

// NewResultsWriter creates a writer appending to the log at path. The
// index is optional; pass nil to skip SQLite mirroring.
func NewResultsWriter(path string, results <-chan model.LightcurveResult, index *store.Index) *ResultsWriter {
	return &ResultsWriter{
		path:    path,
		results: results,
		index:   index,
		log:     logger.GetLogger(),
	}
}

// Start opens the log and launches the writer goroutine. The goroutine
// runs until the results channel is closed or the context is cancelled.
func (w *ResultsWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("results writer already running")
	}
	w.running = true
	w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("open results log: %w", err)
	}

	w.log.WithComponent("results_writer").WithFields(logger.Fields{"path": w.path}).Info("results writer started")
	w.wg.Add(1)
	go w.writeWorker(ctx, f)
	return nil
}

// Stop waits for the writer goroutine to drain and exit. Close the
// results channel before calling Stop, otherwise buffered records are
// lost on context cancellation only.
func (w *ResultsWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.wg.Wait()
	w.log.WithComponent("results_writer").WithFields(logger.Fields{"written": atomic.LoadInt64(&w.written)}).Info("results writer stopped")
}

// Written reports how many records have been appended so far.
func (w *ResultsWriter) Written() int64 {
	return atomic.LoadInt64(&w.written)
}

func (w *ResultsWriter) writeWorker(ctx context.Context, f *os.File) {
	defer w.wg.Done()
	defer f.Close()

	log := w.log.WithComponent("results_writer").WithFields(logger.Fields{"worker": "append"})

	for {
		select {
		case <-ctx.Done():
			w.drain(f, log)
			log.Info("write worker stopped due to context cancellation")
			return
		case res, ok := <-w.results:
			if !ok {
				log.Info("results channel closed, write worker exiting")
				return
			}
			w.append(f, res, log)
		}
	}
}

// drain flushes records already buffered in the channel at shutdown.
func (w *ResultsWriter) drain(f *os.File, log *logger.Entry) {
	for {
		select {
		case res, ok := <-w.results:
			if !ok {
				return
			}
			w.append(f, res, log)
		default:
			return
		}
	}
}

func (w *ResultsWriter) append(f *os.File, res model.LightcurveResult, log *logger.Entry) {
	if _, err := fmt.Fprintln(f, res.EncodeLine()); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"observation": res.Observation,
			"candidate":   res.CandidateID,
		}).Error("failed to append result")
		return
	}
	atomic.AddInt64(&w.written, 1)
	logger.IncrementResultWritten()

	if w.index != nil {
		if err := w.index.Record(res); err != nil {
			log.WithError(err).Warn("failed to index result")
		}
	}
}
