// Package frontier implements the breadth-first crawl over the site graph.
// Discovered links pass through URL normalization before joining the queue,
// so every page is visited at most once per run regardless of how many URL
// spellings point at it.
package frontier

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
	"github.com/aaronshin43/rush-crawler/internal/extract"
	"github.com/aaronshin43/rush-crawler/internal/urlnorm"
)

// State reports where a crawl run ended up.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed" // frontier drained before the budget
	StateExhausted State = "exhausted" // page budget hit first
)

// minSubstantiveWords is the word count below which a page is considered
// thin boilerplate and excluded from results. Thin pages contribute no
// links and are never marked visited, so a later run can retry them.
const minSubstantiveWords = 50

// Config bounds a single crawl run.
type Config struct {
	MaxPages int
	Delay    time.Duration
}

// Engine walks the site breadth-first from a seed URL.
type Engine struct {
	normalizer *urlnorm.Normalizer
	fetcher    crawler.Fetcher
	extractor  *extract.Extractor
	logger     *zap.Logger

	state State
	stats crawler.RunStats
}

func New(normalizer *urlnorm.Normalizer, fetcher crawler.Fetcher, extractor *extract.Extractor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		normalizer: normalizer,
		fetcher:    fetcher,
		extractor:  extractor,
		logger:     logger,
		state:      StateIdle,
	}
}

// State returns the engine's phase after the most recent run.
func (e *Engine) State() State {
	return e.state
}

// Statistics returns aggregates for the most recent run.
func (e *Engine) Statistics() crawler.RunStats {
	return e.stats
}

type queueItem struct {
	normalized string
}

// Crawl runs BFS from seed until cfg.MaxPages substantive pages are
// collected or the frontier drains. Fetch and extraction failures skip the
// page and keep going; only context cancellation aborts the run. progress
// may be nil.
func (e *Engine) Crawl(ctx context.Context, seed string, cfg Config, progress crawler.ProgressFunc) ([]crawler.Page, error) {
	if cfg.MaxPages <= 0 {
		return nil, fmt.Errorf("max pages must be positive, got %d", cfg.MaxPages)
	}
	seedNorm, ok := e.normalizer.Normalize(seed)
	if !ok {
		return nil, fmt.Errorf("seed url rejected by normalizer: %s", seed)
	}

	e.state = StateRunning
	e.stats = crawler.RunStats{Categories: make(map[string]int)}

	queue := []queueItem{{normalized: seedNorm}}
	enqueued := map[string]bool{seedNorm: true}
	visited := make(map[string]bool)
	var pages []crawler.Page
	attempted := 0

	for len(queue) > 0 && len(pages) < cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			e.state = StateIdle
			return pages, fmt.Errorf("crawl aborted: %w", err)
		}

		item := queue[0]
		queue = queue[1:]
		if visited[item.normalized] {
			continue
		}

		// The delay separates fetch attempts regardless of how the
		// previous one turned out.
		if attempted > 0 && cfg.Delay > 0 {
			if err := pause(ctx, cfg.Delay); err != nil {
				e.state = StateIdle
				return pages, fmt.Errorf("crawl aborted: %w", err)
			}
		}
		attempted++

		body, err := e.fetcher.Fetch(ctx, item.normalized)
		if err != nil {
			if ctx.Err() != nil {
				e.state = StateIdle
				return pages, fmt.Errorf("crawl aborted: %w", ctx.Err())
			}
			e.logger.Warn("fetch failed, skipping page", zap.String("url", item.normalized), zap.Error(err))
			continue
		}

		page, err := e.extractor.Extract(body, item.normalized)
		if err != nil {
			e.logger.Warn("extraction failed, skipping page", zap.String("url", item.normalized), zap.Error(err))
			continue
		}
		page.NormalizedURL = item.normalized

		if page.WordCount < minSubstantiveWords {
			e.logger.Debug("thin page, excluded from results",
				zap.String("url", item.normalized),
				zap.Int("words", page.WordCount),
			)
			continue
		}

		for _, link := range e.extractLinks(body, item.normalized) {
			if !enqueued[link.normalized] && !visited[link.normalized] {
				enqueued[link.normalized] = true
				queue = append(queue, link)
			}
		}

		visited[item.normalized] = true
		pages = append(pages, page)
		e.stats.TotalPages++
		e.stats.TotalWords += page.WordCount
		e.stats.Categories[page.Category]++
		if progress != nil {
			progress(len(pages), cfg.MaxPages)
		}
	}

	if e.stats.TotalPages > 0 {
		e.stats.AvgWordsPerPage = float64(e.stats.TotalWords) / float64(e.stats.TotalPages)
	}
	if len(pages) >= cfg.MaxPages {
		e.state = StateExhausted
	} else {
		e.state = StateCompleted
	}
	e.logger.Info("crawl finished",
		zap.String("state", string(e.state)),
		zap.Int("pages", e.stats.TotalPages),
		zap.Int("words", e.stats.TotalWords),
	)
	return pages, nil
}

// extractLinks pulls anchors out of the raw HTML, resolves them against the
// page URL, and keeps only those the normalizer accepts.
func (e *Engine) extractLinks(rawHTML, pageURL string) []queueItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []queueItem
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		normalized, ok := e.normalizer.Normalize(resolved)
		if !ok || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, queueItem{normalized: normalized})
	})
	return links
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
