// Package archive implements the acquisition stage: fetching raw event
// and calibration products for one observation from the science archive.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"epicflow/config"
	"epicflow/logger"
)

// Downloader fetches archive products over HTTP with bounded retries.
// Transfers are verified non-empty before the target file is put in
// place, so a failed download never leaves a truncated product behind
// for a later stage to trip over.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter
	retry   config.RetryConfig
	log     *logger.Log
}

func NewDownloader(cfg config.ArchiveConfig) *Downloader {
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	return &Downloader{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		retry:   cfg.Retry,
		log:     logger.GetLogger(),
	}
}

// Fetch downloads url into dest. An existing non-empty dest
// short-circuits the transfer. Each attempt is rate limited; failures are
// retried with exponential backoff up to the configured attempt budget.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	log := d.log.WithComponent("downloader").WithFields(logger.Fields{"url": url, "dest": dest})

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		log.Debug("target exists, skipping download")
		return nil
	}

	b := &backoff.Backoff{
		Min:    d.retry.BaseDelay,
		Max:    d.retry.MaxDelay,
		Factor: d.retry.Factor,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		size, err := d.fetchOnce(ctx, url, dest)
		if err == nil {
			log.WithFields(logger.Fields{"bytes": size, "attempt": attempt}).Info("download complete")
			logger.IncrementDownload(size)
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := b.Duration()
		log.WithError(err).WithFields(logger.Fields{
			"attempt":     attempt,
			"retry_after": delay,
		}).Warn("download failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("download %s after %d attempts: %w", url, d.retry.MaxAttempts, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("archive returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write transfer: %w", err)
	}

	if size == 0 {
		return 0, fmt.Errorf("archive returned an empty product")
	}
	if resp.ContentLength > 0 && size != resp.ContentLength {
		return 0, fmt.Errorf("transfer truncated: got %d of %d bytes", size, resp.ContentLength)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("move transfer into place: %w", err)
	}
	return size, nil
}
