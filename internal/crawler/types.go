// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// Priority is the update cadence assigned to a page from its URL shape.
type Priority string

// Priority values, ordered by re-crawl cadence.
const (
	// PriorityHigh marks pages expected to change daily (news, events, menus).
	PriorityHigh Priority = "high"
	// PriorityLow marks pages re-checked weekly (the default).
	PriorityLow Priority = "low"
	// PriorityStatic marks archival pages re-checked quarterly or manually.
	PriorityStatic Priority = "static"
)

// Section is heading-only metadata captured in document order. Body text is
// not duplicated here; it already lives in Page.Content.
type Section struct {
	Level string `json:"level"`
	Title string `json:"title"`
}

// Page is the transient payload produced for each successfully fetched URL.
type Page struct {
	URL           string    `json:"url"`
	NormalizedURL string    `json:"normalized_url"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	ContentHash   string    `json:"content_hash"`
	Sections      []Section `json:"sections"`
	Category      string    `json:"category"`
	Priority      Priority  `json:"priority"`
	WordCount     int       `json:"word_count"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Document is the stored form of a page, keyed by its normalized URL.
// Documents are created on first fetch, mutated in place on content-hash
// change, and only ever deleted by an operator.
type Document struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	NormalizedURL string     `json:"normalized_url"`
	Title         string     `json:"title"`
	Category      string     `json:"category"`
	Content       string     `json:"content"`
	ContentHash   string     `json:"content_hash"`
	Sections      []Section  `json:"sections"`
	WordCount     int        `json:"word_count"`
	Priority      Priority   `json:"priority"`
	Status        string     `json:"status"`
	CrawledAt     time.Time  `json:"crawled_at"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

// DocumentStatusActive is the lifecycle status set on creation.
const DocumentStatusActive = "active"

// Outcome is the reconciliation decision for one page.
type Outcome string

// Reconciliation outcomes.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// RunStats summarizes one frontier run. Purely derived from the results.
type RunStats struct {
	TotalPages      int            `json:"total_pages"`
	TotalWords      int            `json:"total_words"`
	AvgWordsPerPage float64        `json:"avg_words_per_page"`
	Categories      map[string]int `json:"categories"`
}

// SyncStats aggregates reconciliation counts for a crawl-and-save run.
type SyncStats struct {
	TotalCrawled int      `json:"total_crawled"`
	Created      int      `json:"created"`
	Updated      int      `json:"updated"`
	Unchanged    int      `json:"unchanged"`
	Failed       int      `json:"failed"`
	Crawler      RunStats `json:"crawler_stats"`
}

// CategoryStats is one bucket of the per-category document aggregate.
type CategoryStats struct {
	Count      int `json:"count"`
	TotalWords int `json:"total_words"`
}

// JobKind identifies which pipeline a submitted job runs.
type JobKind string

// Supported job kinds.
const (
	JobKindSingleURL   JobKind = "single_url"
	JobKindFullSite    JobKind = "full_site"
	JobKindIncremental JobKind = "incremental_update"
)

// JobStatus represents the lifecycle state of a submitted job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobParameters captures per-job configuration requested by the client.
type JobParameters struct {
	URL      string   `json:"url,omitempty"`
	SeedURL  string   `json:"seed_url,omitempty"`
	MaxPages int      `json:"max_pages,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

// JobProgress reports how far a running job has advanced.
type JobProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Job is the metadata persisted for each submitted crawl request.
type Job struct {
	ID         string        `json:"id"`
	Kind       JobKind       `json:"kind"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Progress   JobProgress   `json:"progress"`
	Result     *SyncStats    `json:"result,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Kind      JobKind
	Params    JobParameters
	Submitted int64
}
