// Package memory provides an in-memory DocumentRepository for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
)

// DocumentStore keeps documents in a map keyed by normalized URL.
type DocumentStore struct {
	mu    sync.RWMutex
	docs  map[string]crawler.Document
	clock crawler.Clock
	ids   crawler.IDGenerator
}

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore(clock crawler.Clock, ids crawler.IDGenerator) *DocumentStore {
	return &DocumentStore{
		docs:  make(map[string]crawler.Document),
		clock: clock,
		ids:   ids,
	}
}

// FindByNormalizedURL returns the stored document or (nil, nil) when absent.
func (s *DocumentStore) FindByNormalizedURL(_ context.Context, normalizedURL string) (*crawler.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[normalizedURL]
	if !ok {
		return nil, nil
	}
	out := doc
	return &out, nil
}

// Create stores a new document and returns its ID. The normalized URL must
// not already be present.
func (s *DocumentStore) Create(_ context.Context, doc crawler.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.NormalizedURL]; exists {
		return "", fmt.Errorf("document already exists for %s", doc.NormalizedURL)
	}
	if doc.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("generate document id: %w", err)
		}
		doc.ID = id
	}
	if doc.CrawledAt.IsZero() {
		doc.CrawledAt = s.clock.Now()
	}
	s.docs[doc.NormalizedURL] = doc
	return doc.ID, nil
}

// UpdateContent replaces the stored content fields and stamps last_updated.
// Returns false when no document exists for the normalized URL.
func (s *DocumentStore) UpdateContent(_ context.Context, normalizedURL, content, contentHash string, sections []crawler.Section) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[normalizedURL]
	if !ok {
		return false, nil
	}
	doc.Content = content
	doc.ContentHash = contentHash
	doc.Sections = sections
	doc.WordCount = len(strings.Fields(content))
	now := s.clock.Now()
	doc.LastUpdated = &now
	s.docs[normalizedURL] = doc
	return true, nil
}

// ListURLs returns normalized URLs, optionally filtered by priority. The
// result is sorted so incremental runs walk documents in a stable order.
func (s *DocumentStore) ListURLs(_ context.Context, priority crawler.Priority) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, 0, len(s.docs))
	for key, doc := range s.docs {
		if priority != "" && doc.Priority != priority {
			continue
		}
		urls = append(urls, key)
	}
	sort.Strings(urls)
	return urls, nil
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// AggregateByCategory returns per-category document counts and word totals.
func (s *DocumentStore) AggregateByCategory(_ context.Context) (map[string]crawler.CategoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]crawler.CategoryStats)
	for _, doc := range s.docs {
		stats := out[doc.Category]
		stats.Count++
		stats.TotalWords += doc.WordCount
		out[doc.Category] = stats
	}
	return out, nil
}

// DeleteByURL removes the document for a normalized URL, reporting whether
// anything was deleted.
func (s *DocumentStore) DeleteByURL(_ context.Context, normalizedURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[normalizedURL]; !ok {
		return false, nil
	}
	delete(s.docs, normalizedURL)
	return true, nil
}
