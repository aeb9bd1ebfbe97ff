package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aaronshin43/rush-crawler/internal/metrics"
)

// FetcherConfig controls HTTP behavior for page fetches.
type FetcherConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultFetcherConfig returns the production fetch settings: identifying
// user agent, 10s timeout, and 3 retries with doubling backoff from 1s.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:   "RUSH-Bot/1.0 (Dickinson College Student Project; +https://github.com/aaronshin43)",
		Timeout:     10 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Second,
	}
}

// retryableStatus lists the transient HTTP statuses worth another attempt.
// Only GET is issued, so retrying is safe.
var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// CollyFetcher implements crawler.Fetcher using a Colly collector. Each
// attempt clones the base collector so per-collector visit tracking never
// blocks a retry.
type CollyFetcher struct {
	cfg    FetcherConfig
	base   *colly.Collector
	logger *zap.Logger
}

// NewCollyFetcher builds a fetcher.
func NewCollyFetcher(cfg FetcherConfig, logger *zap.Logger) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(colly.Async(false))
	base.IgnoreRobotsTxt = true
	return &CollyFetcher{cfg: cfg, base: base, logger: logger}
}

// Fetch issues an HTTP GET for url and returns the body. Transient statuses
// are retried with doubling backoff; anything else fails immediately. A
// returned error means the URL is skipped, never that the run aborts.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("fetch %s: %w", url, err)
		}
		if attempt > 0 {
			if err := f.pause(ctx, f.cfg.BackoffBase<<(attempt-1)); err != nil {
				return "", fmt.Errorf("fetch %s: %w", url, err)
			}
		}

		started := time.Now()
		body, status, err := f.attempt(url)
		metrics.ObserveFetch(status, time.Since(started))
		if err == nil && status < 400 {
			return body, nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("status %d", status)
		}
		if !retryableStatus[status] {
			return "", fmt.Errorf("fetch %s: %w", url, lastErr)
		}
		f.logger.Warn("transient fetch failure, will retry",
			zap.String("url", url),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1),
		)
	}
	return "", fmt.Errorf("fetch %s after %d attempts: %w", url, f.cfg.MaxRetries+1, lastErr)
}

func (f *CollyFetcher) attempt(url string) (string, int, error) {
	collector := f.base.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     string
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := collector.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	collector.Wait()
	return body, status, fetchErr
}

func (f *CollyFetcher) pause(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
