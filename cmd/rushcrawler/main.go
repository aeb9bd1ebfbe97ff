// Package main wires together the crawl service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aaronshin43/rush-crawler/internal/api"
	"github.com/aaronshin43/rush-crawler/internal/clock/system"
	"github.com/aaronshin43/rush-crawler/internal/config"
	"github.com/aaronshin43/rush-crawler/internal/crawler"
	"github.com/aaronshin43/rush-crawler/internal/dispatcher"
	"github.com/aaronshin43/rush-crawler/internal/extract"
	"github.com/aaronshin43/rush-crawler/internal/frontier"
	"github.com/aaronshin43/rush-crawler/internal/hash/sha256"
	"github.com/aaronshin43/rush-crawler/internal/id/uuid"
	"github.com/aaronshin43/rush-crawler/internal/logging"
	"github.com/aaronshin43/rush-crawler/internal/metrics"
	"github.com/aaronshin43/rush-crawler/internal/progress"
	"github.com/aaronshin43/rush-crawler/internal/progress/sinks"
	qmemory "github.com/aaronshin43/rush-crawler/internal/queue/memory"
	rmemory "github.com/aaronshin43/rush-crawler/internal/repository/memory"
	"github.com/aaronshin43/rush-crawler/internal/repository/postgres"
	smemory "github.com/aaronshin43/rush-crawler/internal/storage/memory"
	"github.com/aaronshin43/rush-crawler/internal/syncer"
	"github.com/aaronshin43/rush-crawler/internal/urlnorm"
	"github.com/aaronshin43/rush-crawler/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()
	hasher := sha256.New()

	var repo crawler.DocumentRepository
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory document repository")
		repo = rmemory.NewDocumentStore(clock, idGen)
	} else {
		store, err := postgres.NewDocumentStore(ctx, postgres.DocumentStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}, clock)
		if err != nil {
			logger.Fatal("connect document store", zap.Error(err))
		}
		defer store.Close()
		repo = store
	}

	rules := urlnorm.DefaultRules()
	if cfg.Crawler.RootDomain != "" {
		rules.RootDomain = cfg.Crawler.RootDomain
	}
	normalizer := urlnorm.New(rules)

	fetcher := extract.NewCollyFetcher(extract.FetcherConfig{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
	}, logger.Named("fetcher"))
	classifier := extract.NewClassifier(extract.DefaultClassifierRules(), clock)
	extractor := extract.NewExtractor(classifier, hasher, clock, logger.Named("extract"))
	engine := frontier.New(normalizer, fetcher, extractor, logger.Named("frontier"))
	svc := syncer.New(repo, engine, fetcher, extractor, normalizer, idGen, clock, logger.Named("syncer"))

	progressSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Warn("progress metrics sink init failed", zap.Error(err))
	} else {
		progressSinks = append(progressSinks, promSink)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, progressSinks...)

	jobStore := smemory.NewJobStore(clock)
	queue := qmemory.NewQueue(cfg.Crawler.QueueDepth)

	workerCfg := worker.Config{
		DefaultSeedURL:  cfg.Crawler.SeedURL,
		DefaultMaxPages: cfg.Crawler.MaxPagesDefault,
		Delay:           cfg.Delay(),
		JobTimeout:      cfg.JobTimeout(),
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			svc,
			repo,
			hub,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, repo, dispatch, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
