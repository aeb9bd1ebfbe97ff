package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aaronshin43/rush-crawler/internal/progress"
)

func TestPrometheusSinkJobLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobStart, Kind: "full_site"},
		{JobID: "job-2", TS: now, Stage: progress.StageJobStart, Kind: "single_url"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted.WithLabelValues("full_site")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsRunning))

	done := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobDone, Kind: "full_site", Dur: 3 * time.Second},
		{JobID: "job-2", TS: now, Stage: progress.StageJobError, Kind: "single_url", Dur: time.Second, Note: "fetch failed"},
	}
	require.NoError(t, sink.Consume(context.Background(), done))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("full_site", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("single_url", "error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))

	// A duplicate completion must not push the gauge negative.
	require.NoError(t, sink.Consume(context.Background(), done[:1]))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
