package crawler

import (
	"context"
	"time"
)

// DocumentRepository persists crawled documents keyed by normalized URL.
// FindByNormalizedURL returns (nil, nil) when no document exists.
type DocumentRepository interface {
	FindByNormalizedURL(ctx context.Context, normalizedURL string) (*Document, error)
	Create(ctx context.Context, doc Document) (string, error)
	UpdateContent(ctx context.Context, normalizedURL, content, contentHash string, sections []Section) (bool, error)
	ListURLs(ctx context.Context, priority Priority) ([]string, error)
	Count(ctx context.Context) (int, error)
	AggregateByCategory(ctx context.Context) (map[string]CategoryStats, error)
	DeleteByURL(ctx context.Context, normalizedURL string) (bool, error)
}

// Fetcher retrieves the raw HTML for a URL. Implementations retry transient
// failures internally; a returned error means the URL should be skipped.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Hasher computes the content digest used for change detection.
// Empty input must hash to the empty string, not a digest of empty bytes.
type Hasher interface {
	Hash(text string) string
}

// JobStore persists job metadata and progress.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	UpdateJobProgress(ctx context.Context, jobID string, progress JobProgress) error
	SetJobResult(ctx context.Context, jobID string, result SyncStats) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and document IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// ProgressFunc is invoked after each page is fetched, before reconciliation.
type ProgressFunc func(current, total int)
