// Package memory provides an in-memory job store for development and
// testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
)

// JobStore keeps job metadata in a map guarded by a mutex.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]crawler.Job
	clock crawler.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(clock crawler.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]crawler.Job),
		clock: clock,
	}
}

// CreateJob stores a new job in pending status.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	if job.Status == "" {
		job.Status = crawler.JobStatusPending
	}
	if job.Submitted.IsZero() {
		job.Submitted = s.clock.Now()
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus moves a job through its lifecycle, stamping start and
// finish times on the transitions.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status crawler.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.ErrorText = errText
	now := s.clock.Now()
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if isTerminal(status) {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateJobProgress records how far a running job has advanced.
func (s *JobStore) UpdateJobProgress(_ context.Context, jobID string, progress crawler.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Progress = progress
	s.jobs[jobID] = job
	return nil
}

// SetJobResult attaches the final sync statistics to a job.
func (s *JobStore) SetJobResult(_ context.Context, jobID string, result crawler.SyncStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	out := result
	job.Result = &out
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, errors.New("job not found")
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status crawler.JobStatus) bool {
	switch status {
	case crawler.JobStatusSucceeded, crawler.JobStatusFailed:
		return true
	default:
		return false
	}
}
