// Package syncer reconciles crawled pages against the document store. It
// decides, per page, whether to create a new document, update an existing
// one, or leave it untouched when the content hash matches.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
	"github.com/aaronshin43/rush-crawler/internal/extract"
	"github.com/aaronshin43/rush-crawler/internal/frontier"
	"github.com/aaronshin43/rush-crawler/internal/metrics"
	"github.com/aaronshin43/rush-crawler/internal/urlnorm"
)

// Service ties the frontier, fetcher, and extractor to the document store.
type Service struct {
	repo       crawler.DocumentRepository
	engine     *frontier.Engine
	fetcher    crawler.Fetcher
	extractor  *extract.Extractor
	normalizer *urlnorm.Normalizer
	ids        crawler.IDGenerator
	clock      crawler.Clock
	logger     *zap.Logger
}

// New constructs a Service.
func New(
	repo crawler.DocumentRepository,
	engine *frontier.Engine,
	fetcher crawler.Fetcher,
	extractor *extract.Extractor,
	normalizer *urlnorm.Normalizer,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		engine:     engine,
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: normalizer,
		ids:        ids,
		clock:      clock,
		logger:     logger,
	}
}

// Reconcile stores one crawled page. The page's URL is normalized here
// rather than trusting the caller's key; the content hash then decides
// between create, update, and unchanged. A storage failure reports
// OutcomeFailed with the error.
func (s *Service) Reconcile(ctx context.Context, page crawler.Page) (crawler.Outcome, error) {
	outcome, err := s.reconcile(ctx, page)
	metrics.ObservePage(page.Category, string(outcome))
	return outcome, err
}

func (s *Service) reconcile(ctx context.Context, page crawler.Page) (crawler.Outcome, error) {
	source := page.URL
	if source == "" {
		source = page.NormalizedURL
	}
	normalized, ok := s.normalizer.Normalize(source)
	if !ok {
		return crawler.OutcomeFailed, fmt.Errorf("url rejected by normalizer: %q", source)
	}
	page.NormalizedURL = normalized

	existing, err := s.repo.FindByNormalizedURL(ctx, page.NormalizedURL)
	if err != nil {
		return crawler.OutcomeFailed, fmt.Errorf("lookup %s: %w", page.NormalizedURL, err)
	}

	if existing == nil {
		id, err := s.ids.NewID()
		if err != nil {
			return crawler.OutcomeFailed, fmt.Errorf("generate id for %s: %w", page.NormalizedURL, err)
		}
		doc := crawler.Document{
			ID:            id,
			URL:           page.URL,
			NormalizedURL: page.NormalizedURL,
			Title:         page.Title,
			Category:      page.Category,
			Content:       page.Content,
			ContentHash:   page.ContentHash,
			Sections:      page.Sections,
			WordCount:     page.WordCount,
			Priority:      page.Priority,
			Status:        crawler.DocumentStatusActive,
			CrawledAt:     page.FetchedAt,
		}
		if doc.CrawledAt.IsZero() {
			doc.CrawledAt = s.clock.Now()
		}
		if _, err := s.repo.Create(ctx, doc); err != nil {
			return crawler.OutcomeFailed, fmt.Errorf("create %s: %w", page.NormalizedURL, err)
		}
		return crawler.OutcomeCreated, nil
	}

	if existing.ContentHash == page.ContentHash {
		return crawler.OutcomeUnchanged, nil
	}

	updated, err := s.repo.UpdateContent(ctx, page.NormalizedURL, page.Content, page.ContentHash, page.Sections)
	if err != nil {
		return crawler.OutcomeFailed, fmt.Errorf("update %s: %w", page.NormalizedURL, err)
	}
	if !updated {
		return crawler.OutcomeFailed, fmt.Errorf("update %s: no row matched", page.NormalizedURL)
	}
	return crawler.OutcomeUpdated, nil
}

// SyncURL fetches, extracts, and reconciles a single URL.
func (s *Service) SyncURL(ctx context.Context, rawURL string) (crawler.Outcome, error) {
	normalized, ok := s.normalizer.Normalize(rawURL)
	if !ok {
		return crawler.OutcomeFailed, fmt.Errorf("url rejected by normalizer: %s", rawURL)
	}
	body, err := s.fetcher.Fetch(ctx, normalized)
	if err != nil {
		return crawler.OutcomeFailed, err
	}
	page, err := s.extractor.Extract(body, normalized)
	if err != nil {
		return crawler.OutcomeFailed, err
	}
	page.NormalizedURL = normalized
	return s.Reconcile(ctx, page)
}

// CrawlAndSave runs a bounded BFS crawl from seed and reconciles every
// substantive page. Per-page failures are counted, not fatal; only context
// cancellation aborts the run.
func (s *Service) CrawlAndSave(ctx context.Context, seed string, maxPages int, delay time.Duration, progress crawler.ProgressFunc) (crawler.SyncStats, error) {
	var stats crawler.SyncStats

	pages, err := s.engine.Crawl(ctx, seed, frontier.Config{MaxPages: maxPages, Delay: delay}, progress)
	if err != nil {
		return stats, fmt.Errorf("crawl from %s: %w", seed, err)
	}

	for _, page := range pages {
		outcome, err := s.Reconcile(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("sync aborted: %w", ctx.Err())
			}
			s.logger.Warn("reconcile failed", zap.String("url", page.NormalizedURL), zap.Error(err))
		}
		stats.TotalCrawled++
		s.count(&stats, outcome)
	}

	stats.Crawler = s.engine.Statistics()
	s.logger.Info("crawl-and-save finished",
		zap.Int("crawled", stats.TotalCrawled),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// IncrementalUpdate re-fetches documents already in the store, optionally
// restricted to one priority tier, and reconciles each against its stored
// content hash.
func (s *Service) IncrementalUpdate(ctx context.Context, priority crawler.Priority, delay time.Duration, progress crawler.ProgressFunc) (crawler.SyncStats, error) {
	var stats crawler.SyncStats

	urls, err := s.repo.ListURLs(ctx, priority)
	if err != nil {
		return stats, fmt.Errorf("list documents: %w", err)
	}

	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("update aborted: %w", err)
		}
		if i > 0 && delay > 0 {
			if err := pause(ctx, delay); err != nil {
				return stats, fmt.Errorf("update aborted: %w", err)
			}
		}

		outcome, err := s.SyncURL(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("update aborted: %w", ctx.Err())
			}
			s.logger.Warn("incremental sync failed", zap.String("url", u), zap.Error(err))
		}
		stats.TotalCrawled++
		s.count(&stats, outcome)
		if progress != nil {
			progress(i+1, len(urls))
		}
	}

	s.logger.Info("incremental update finished",
		zap.String("priority", string(priority)),
		zap.Int("checked", stats.TotalCrawled),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *Service) count(stats *crawler.SyncStats, outcome crawler.Outcome) {
	switch outcome {
	case crawler.OutcomeCreated:
		stats.Created++
	case crawler.OutcomeUpdated:
		stats.Updated++
	case crawler.OutcomeUnchanged:
		stats.Unchanged++
	default:
		stats.Failed++
	}
}

func pause(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
