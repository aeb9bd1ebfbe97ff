// Package worker implements the crawl job execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aaronshin43/rush-crawler/internal/clock/system"
	"github.com/aaronshin43/rush-crawler/internal/crawler"
	"github.com/aaronshin43/rush-crawler/internal/metrics"
	"github.com/aaronshin43/rush-crawler/internal/progress"
	"github.com/aaronshin43/rush-crawler/internal/syncer"
)

// Config controls Worker behavior.
type Config struct {
	DefaultSeedURL  string
	DefaultMaxPages int
	Delay           time.Duration
	JobTimeout      time.Duration
}

// Worker consumes queue items and runs the matching sync pipeline.
type Worker struct {
	queue    crawler.Queue
	jobStore crawler.JobStore
	syncer   *syncer.Service
	repo     crawler.DocumentRepository
	emitter  progress.Emitter
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. emitter may be nil when no progress stream is
// configured.
func New(
	queue crawler.Queue,
	jobStore crawler.JobStore,
	svc *syncer.Service,
	repo crawler.DocumentRepository,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = 100
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Hour
	}
	return &Worker{
		queue:    queue,
		jobStore: jobStore,
		syncer:   svc,
		repo:     repo,
		emitter:  emitter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("kind", string(item.Kind)))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, ""); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	started := w.clock.Now()
	w.emit(progress.Event{
		JobID: item.JobID,
		TS:    started,
		Stage: progress.StageJobStart,
		Kind:  string(item.Kind),
	})

	// Every job runs under a hard deadline so a stuck crawl cannot pin a
	// worker forever.
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	stats, err := w.runJob(jobCtx, item)

	status := crawler.JobStatusSucceeded
	errText := ""
	if err != nil {
		status = crawler.JobStatusFailed
		errText = err.Error()
		w.logger.Warn("job failed",
			zap.String("job_id", item.JobID),
			zap.String("kind", string(item.Kind)),
			zap.Error(err),
		)
	} else {
		if err := w.jobStore.SetJobResult(ctx, item.JobID, stats); err != nil {
			w.logger.Error("set job result failed", zap.String("job_id", item.JobID), zap.Error(err))
		}
	}

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, status, errText); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
	metrics.ObserveJob(string(item.Kind), string(status))

	finished := w.clock.Now()
	stage := progress.StageJobDone
	if status == crawler.JobStatusFailed {
		stage = progress.StageJobError
	}
	w.emit(progress.Event{
		JobID: item.JobID,
		TS:    finished,
		Stage: stage,
		Kind:  string(item.Kind),
		Dur:   finished.Sub(started),
		Note:  errText,
	})

	if n, err := w.repo.Count(ctx); err == nil {
		metrics.SetDocumentCount(n)
	}
}

func (w *Worker) runJob(ctx context.Context, item crawler.QueueItem) (crawler.SyncStats, error) {
	report := func(current, total int) {
		if err := w.jobStore.UpdateJobProgress(ctx, item.JobID, crawler.JobProgress{Current: current, Total: total}); err != nil {
			w.logger.Debug("progress update failed", zap.String("job_id", item.JobID), zap.Error(err))
		}
		w.emit(progress.Event{
			JobID:   item.JobID,
			TS:      w.clock.Now(),
			Stage:   progress.StageJobProgress,
			Kind:    string(item.Kind),
			Current: current,
			Total:   total,
		})
	}

	switch item.Kind {
	case crawler.JobKindSingleURL:
		return w.runSingleURL(ctx, item)
	case crawler.JobKindFullSite:
		seed := item.Params.SeedURL
		if seed == "" {
			seed = w.cfg.DefaultSeedURL
		}
		maxPages := item.Params.MaxPages
		if maxPages <= 0 {
			maxPages = w.cfg.DefaultMaxPages
		}
		return w.syncer.CrawlAndSave(ctx, seed, maxPages, w.cfg.Delay, report)
	case crawler.JobKindIncremental:
		return w.syncer.IncrementalUpdate(ctx, item.Params.Priority, w.cfg.Delay, report)
	default:
		return crawler.SyncStats{}, fmt.Errorf("unknown job kind %q", item.Kind)
	}
}

func (w *Worker) runSingleURL(ctx context.Context, item crawler.QueueItem) (crawler.SyncStats, error) {
	if item.Params.URL == "" {
		return crawler.SyncStats{}, fmt.Errorf("single url job requires a url")
	}
	outcome, err := w.syncer.SyncURL(ctx, item.Params.URL)
	if err != nil {
		return crawler.SyncStats{}, err
	}
	stats := crawler.SyncStats{TotalCrawled: 1}
	switch outcome {
	case crawler.OutcomeCreated:
		stats.Created = 1
	case crawler.OutcomeUpdated:
		stats.Updated = 1
	case crawler.OutcomeUnchanged:
		stats.Unchanged = 1
	default:
		stats.Failed = 1
	}
	return stats, nil
}
