package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronshin43/rush-crawler/internal/crawler"
	"github.com/aaronshin43/rush-crawler/internal/extract"
	"github.com/aaronshin43/rush-crawler/internal/frontier"
	"github.com/aaronshin43/rush-crawler/internal/hash/sha256"
	"github.com/aaronshin43/rush-crawler/internal/id/uuid"
	"github.com/aaronshin43/rush-crawler/internal/progress"
	qmemory "github.com/aaronshin43/rush-crawler/internal/queue/memory"
	rmemory "github.com/aaronshin43/rush-crawler/internal/repository/memory"
	smemory "github.com/aaronshin43/rush-crawler/internal/storage/memory"
	"github.com/aaronshin43/rush-crawler/internal/syncer"
	"github.com/aaronshin43/rush-crawler/internal/urlnorm"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no route for %s", url)
	}
	return body, nil
}

func htmlPage(title, text string, links ...string) string {
	var nav strings.Builder
	for _, l := range links {
		fmt.Fprintf(&nav, `<a href="%s">link</a>`, l)
	}
	return fmt.Sprintf(
		`<html><head><title>%s</title></head><body><nav>%s</nav><main><p>%s</p></main></body></html>`,
		title, nav.String(), text,
	)
}

func prose(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Stage
	}
	return out
}

type harness struct {
	worker  *Worker
	queue   *qmemory.Queue
	jobs    *smemory.JobStore
	repo    *rmemory.DocumentStore
	emitter *captureEmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.dickinson.edu/":          htmlPage("Home | Dickinson", prose(60), "/about", "/academics"),
		"https://www.dickinson.edu/about":     htmlPage("About | Dickinson", prose(60)),
		"https://www.dickinson.edu/academics": htmlPage("Academics | Dickinson", prose(60)),
	}}

	clock := fixedClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}
	ids := uuid.NewUUIDGenerator()
	normalizer := urlnorm.New(urlnorm.DefaultRules())
	extractor := extract.NewExtractor(
		extract.NewClassifier(extract.DefaultClassifierRules(), clock),
		sha256.New(), clock, nil,
	)
	engine := frontier.New(normalizer, fetcher, extractor, nil)
	repo := rmemory.NewDocumentStore(clock, ids)
	svc := syncer.New(repo, engine, fetcher, extractor, normalizer, ids, clock, nil)

	queue := qmemory.NewQueue(8)
	jobs := smemory.NewJobStore(clock)
	emitter := &captureEmitter{}
	w := New(queue, jobs, svc, repo, emitter, clock, Config{
		DefaultSeedURL:  "https://www.dickinson.edu/",
		DefaultMaxPages: 10,
		JobTimeout:      time.Minute,
	}, nil)

	return &harness{worker: w, queue: queue, jobs: jobs, repo: repo, emitter: emitter}
}

func (h *harness) submit(t *testing.T, kind crawler.JobKind, params crawler.JobParameters) crawler.Job {
	t.Helper()
	job := crawler.Job{ID: "job-" + string(kind), Kind: kind, Parameters: params}
	require.NoError(t, h.jobs.CreateJob(context.Background(), job))
	return job
}

func TestProcessJobFullSite(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t, crawler.JobKindFullSite, crawler.JobParameters{})

	h.worker.processJob(ctx, crawler.QueueItem{JobID: job.ID, Kind: job.Kind, Params: job.Parameters})

	final, err := h.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, final.Status)
	require.NotNil(t, final.Result)
	require.Equal(t, 3, final.Result.Created)
	require.Equal(t, 3, final.Progress.Current)
	require.NotNil(t, final.Started)
	require.NotNil(t, final.Finished)

	n, err := h.repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	stages := h.emitter.stages()
	require.Equal(t, progress.StageJobStart, stages[0])
	require.Equal(t, progress.StageJobDone, stages[len(stages)-1])
	require.Contains(t, stages, progress.StageJobProgress)
}

func TestProcessJobSingleURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t, crawler.JobKindSingleURL, crawler.JobParameters{URL: "https://www.dickinson.edu/about"})

	h.worker.processJob(ctx, crawler.QueueItem{JobID: job.ID, Kind: job.Kind, Params: job.Parameters})

	final, err := h.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, final.Status)
	require.Equal(t, 1, final.Result.Created)
}

func TestProcessJobSingleURLFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t, crawler.JobKindSingleURL, crawler.JobParameters{URL: "https://www.dickinson.edu/unreachable"})

	h.worker.processJob(ctx, crawler.QueueItem{JobID: job.ID, Kind: job.Kind, Params: job.Parameters})

	final, err := h.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, final.Status)
	require.NotEmpty(t, final.ErrorText)
	require.Nil(t, final.Result)
}

func TestProcessJobIncremental(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	seedJob := h.submit(t, crawler.JobKindFullSite, crawler.JobParameters{})
	h.worker.processJob(ctx, crawler.QueueItem{JobID: seedJob.ID, Kind: seedJob.Kind, Params: seedJob.Parameters})

	job := h.submit(t, crawler.JobKindIncremental, crawler.JobParameters{})
	h.worker.processJob(ctx, crawler.QueueItem{JobID: job.ID, Kind: job.Kind, Params: job.Parameters})

	final, err := h.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusSucceeded, final.Status)
	require.Equal(t, 3, final.Result.Unchanged)
	require.Zero(t, final.Result.Created)
}

func TestProcessJobUnknownKind(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	job := crawler.Job{ID: "job-x", Kind: crawler.JobKind("bogus")}
	require.NoError(t, h.jobs.CreateJob(ctx, job))

	h.worker.processJob(ctx, crawler.QueueItem{JobID: job.ID, Kind: job.Kind})

	final, err := h.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, final.Status)
	require.Contains(t, final.ErrorText, "unknown job kind")
}

func TestRunConsumesQueueUntilCanceled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	job := h.submit(t, crawler.JobKindSingleURL, crawler.JobParameters{URL: "https://www.dickinson.edu/about"})
	require.NoError(t, h.queue.Enqueue(ctx, crawler.QueueItem{JobID: job.ID, Kind: job.Kind, Params: job.Parameters}))

	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		j, err := h.jobs.GetJob(context.Background(), job.ID)
		return err == nil && j.Status == crawler.JobStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
