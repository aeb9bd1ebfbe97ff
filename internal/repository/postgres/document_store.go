// Package postgres provides the Postgres-backed DocumentRepository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DocumentStoreConfig controls the Postgres connection pool used for
// document rows.
type DocumentStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DocumentStore reads and writes document rows in Postgres. Sections are
// stored as JSONB.
type DocumentStore struct {
	pool  dbPool
	table string
	clock crawler.Clock
}

// NewDocumentStore creates a Postgres-backed DocumentStore using the
// provided config.
func NewDocumentStore(ctx context.Context, cfg DocumentStoreConfig, clock crawler.Clock) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "documents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocumentStore{pool: pool, table: table, clock: clock}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewDocumentStoreWithPool(pool dbPool, table string, clock crawler.Clock) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "documents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &DocumentStore{pool: pool, table: table, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindByNormalizedURL returns the stored document or (nil, nil) when no row
// exists.
func (s *DocumentStore) FindByNormalizedURL(ctx context.Context, normalizedURL string) (*crawler.Document, error) {
	query := fmt.Sprintf(`
SELECT id, url, normalized_url, title, category, content, content_hash,
	sections, word_count, priority, status, crawled_at, last_updated
FROM %s WHERE normalized_url = $1`, s.table)

	var (
		doc          crawler.Document
		sectionsJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, normalizedURL).Scan(
		&doc.ID,
		&doc.URL,
		&doc.NormalizedURL,
		&doc.Title,
		&doc.Category,
		&doc.Content,
		&doc.ContentHash,
		&sectionsJSON,
		&doc.WordCount,
		&doc.Priority,
		&doc.Status,
		&doc.CrawledAt,
		&doc.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &doc.Sections); err != nil {
			return nil, fmt.Errorf("unmarshal sections: %w", err)
		}
	}
	return &doc, nil
}

// Create inserts a document row and returns its ID.
func (s *DocumentStore) Create(ctx context.Context, doc crawler.Document) (string, error) {
	if doc.ID == "" {
		return "", fmt.Errorf("document id is required")
	}
	sectionsJSON, err := json.Marshal(normalizeSections(doc.Sections))
	if err != nil {
		return "", fmt.Errorf("marshal sections: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	normalized_url,
	title,
	category,
	content,
	content_hash,
	sections,
	word_count,
	priority,
	status,
	crawled_at,
	last_updated
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)

	args := []any{
		doc.ID,
		doc.URL,
		doc.NormalizedURL,
		doc.Title,
		doc.Category,
		doc.Content,
		doc.ContentHash,
		sectionsJSON,
		doc.WordCount,
		string(doc.Priority),
		doc.Status,
		doc.CrawledAt,
		doc.LastUpdated,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return doc.ID, nil
}

// UpdateContent replaces the content fields for a normalized URL. Returns
// false when no row matched.
func (s *DocumentStore) UpdateContent(ctx context.Context, normalizedURL, content, contentHash string, sections []crawler.Section) (bool, error) {
	sectionsJSON, err := json.Marshal(normalizeSections(sections))
	if err != nil {
		return false, fmt.Errorf("marshal sections: %w", err)
	}
	query := fmt.Sprintf(`
UPDATE %s SET content = $2, content_hash = $3, sections = $4,
	word_count = $5, last_updated = $6
WHERE normalized_url = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		normalizedURL,
		content,
		contentHash,
		sectionsJSON,
		len(strings.Fields(content)),
		s.clock.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListURLs returns normalized URLs, optionally filtered by priority.
func (s *DocumentStore) ListURLs(ctx context.Context, priority crawler.Priority) ([]string, error) {
	query := fmt.Sprintf("SELECT normalized_url FROM %s ORDER BY normalized_url", s.table)
	args := []any{}
	if priority != "" {
		query = fmt.Sprintf("SELECT normalized_url FROM %s WHERE priority = $1 ORDER BY normalized_url", s.table)
		args = append(args, string(priority))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	return urls, nil
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
	var n int
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// AggregateByCategory returns per-category document counts and word totals.
func (s *DocumentStore) AggregateByCategory(ctx context.Context) (map[string]crawler.CategoryStats, error) {
	query := fmt.Sprintf(`
SELECT category, COUNT(*), COALESCE(SUM(word_count), 0)
FROM %s GROUP BY category`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}
	defer rows.Close()

	out := make(map[string]crawler.CategoryStats)
	for rows.Next() {
		var (
			category string
			stats    crawler.CategoryStats
		)
		if err := rows.Scan(&category, &stats.Count, &stats.TotalWords); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		out[category] = stats
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}
	return out, nil
}

// DeleteByURL removes the row for a normalized URL, reporting whether a row
// was deleted.
func (s *DocumentStore) DeleteByURL(ctx context.Context, normalizedURL string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE normalized_url = $1", s.table)
	tag, err := s.pool.Exec(ctx, query, normalizedURL)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// normalizeSections keeps the JSONB column an array even when a document has
// no sections.
func normalizeSections(sections []crawler.Section) []crawler.Section {
	if sections == nil {
		return []crawler.Section{}
	}
	return sections
}
