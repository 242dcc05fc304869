package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/vnglass/glassflow/internal/app"
	"github.com/vnglass/glassflow/internal/catalog"
	jobmetrics "github.com/vnglass/glassflow/internal/jobs"
	"github.com/vnglass/glassflow/internal/observability"
	"github.com/vnglass/glassflow/internal/platform/db"
	"github.com/vnglass/glassflow/internal/production"
	"github.com/vnglass/glassflow/internal/shared"
	"github.com/vnglass/glassflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ApplicationName: "glassflow-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics("worker")
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	idempotencyStore := shared.NewIdempotencyStore(pool)

	// The sweep reads straight from Postgres; sale orders and products are not
	// consulted when only completion is evaluated.
	productCatalog := catalog.New(catalog.NewPGStore(pool), nil, logger)
	productionService := production.NewService(
		production.NewRepository(pool),
		productCatalog,
		productCatalog,
		production.ServiceConfig{
			Audit:       shared.NewAuditLogger(pool),
			Idempotency: idempotencyStore,
			Metrics:     production.NewMetrics(metrics.Registerer()),
			Logger:      logger,
		},
	)

	sweepJob := jobs.NewCompletionSweepJob(productionService, logger, jobMetrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     idempotencyStore,
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   jobMetrics,
	}

	sweepTask, err := jobs.NewCompletionSweepTask("scheduled")
	if err != nil {
		logger.Error("build completion sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(0)
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCompletionSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CompletionSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencyCleanCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := app.Serve(ctx, metricsServer, logger, 5*time.Second); err != nil {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
