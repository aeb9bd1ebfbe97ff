// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerFetchSeconds        *prometheus.HistogramVec
	crawlerJobsTotal           *prometheus.CounterVec
	crawlerActiveJobs          prometheus.Gauge
	crawlerDocuments           prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages reconciled, labeled by category and outcome.",
			},
			[]string{"category", "outcome"},
		)

		crawlerFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by HTTP status.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"status"},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_jobs_total",
				Help: "Total number of jobs processed, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		crawlerActiveJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_jobs",
				Help: "Number of jobs currently running.",
			},
		)

		crawlerDocuments = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_documents",
				Help: "Number of documents currently stored.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for a reconcile outcome.
func ObservePage(category, outcome string) {
	if crawlerPagesTotal == nil {
		return
	}
	if category == "" {
		category = "unknown"
	}
	crawlerPagesTotal.WithLabelValues(category, outcome).Inc()
}

// ObserveFetch records the duration of one fetch attempt.
func ObserveFetch(status int, duration time.Duration) {
	if crawlerFetchSeconds == nil {
		return
	}
	crawlerFetchSeconds.WithLabelValues(strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given kind and status.
func ObserveJob(kind, status string) {
	if crawlerJobsTotal == nil {
		return
	}
	crawlerJobsTotal.WithLabelValues(kind, status).Inc()
}

// IncActiveJobs increments the running jobs gauge.
func IncActiveJobs() {
	if crawlerActiveJobs == nil {
		return
	}
	crawlerActiveJobs.Inc()
}

// DecActiveJobs decrements the running jobs gauge.
func DecActiveJobs() {
	if crawlerActiveJobs == nil {
		return
	}
	crawlerActiveJobs.Dec()
}

// SetDocumentCount records the current document store size.
func SetDocumentCount(n int) {
	if crawlerDocuments == nil {
		return
	}
	crawlerDocuments.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
