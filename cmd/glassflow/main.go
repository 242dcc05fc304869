package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/vnglass/glassflow/internal/app"
	"github.com/vnglass/glassflow/internal/audit"
	audithttp "github.com/vnglass/glassflow/internal/audit/http"
	"github.com/vnglass/glassflow/internal/catalog"
	"github.com/vnglass/glassflow/internal/observability"
	"github.com/vnglass/glassflow/internal/platform/cache"
	"github.com/vnglass/glassflow/internal/platform/db"
	"github.com/vnglass/glassflow/internal/production"
	"github.com/vnglass/glassflow/internal/shared"
	"github.com/vnglass/glassflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ApplicationName: "glassflow-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Redis backs the order lock and catalog cache; both degrade without it.
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr, "glassflow-api"); err != nil {
		logger.Warn("redis unavailable, running without lock and cache", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics("api")

	var locker production.OrderLocker
	if redisClient != nil {
		locker = cache.NewLocker(redisClient, cache.LockerConfig{
			TTL:      cfg.OrderLockTTL,
			Wait:     cfg.OrderLockWait,
			FailOpen: cfg.OrderLockFailOpen,
			Logger:   logger,
		})
	}

	productCatalog := catalog.New(
		catalog.NewPGStore(dbpool),
		cache.NewJSONCache(redisClient, "catalog", cfg.CatalogCacheTTL),
		logger,
	)

	productionService := production.NewService(
		production.NewRepository(dbpool),
		productCatalog,
		productCatalog,
		production.ServiceConfig{
			Audit:       shared.NewAuditLogger(dbpool),
			Idempotency: shared.NewIdempotencyStore(dbpool),
			Locker:      locker,
			Metrics:     production.NewMetrics(metrics.Registerer()),
			Logger:      logger,
		},
	)
	productionHandler := production.NewHandler(logger, productionService)
	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ProductionHandler: productionHandler,
		JobHandler:        jobHandler,
		AuditHandler:      auditHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	if err := app.Serve(ctx, server, logger, 10*time.Second); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shut down")
}
