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

	"github.com/smart-economato/economato/internal/app"
	"github.com/smart-economato/economato/internal/auth"
	"github.com/smart-economato/economato/internal/backend"
	"github.com/smart-economato/economato/internal/catalog"
	"github.com/smart-economato/economato/internal/observability"
	"github.com/smart-economato/economato/internal/platform/cache"
	"github.com/smart-economato/economato/internal/platform/db"
	"github.com/smart-economato/economato/internal/reception"
	"github.com/smart-economato/economato/internal/shared"
	"github.com/smart-economato/economato/internal/warehouse"
	"github.com/smart-economato/economato/jobs"
	"github.com/smart-economato/economato/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr, PoolSize: cfg.RedisPoolSize})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	opts := reception.Options{Metrics: metrics}

	if cfg.JournalEnabled() {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		applied, err := db.Migrate(ctx, pool, migrations.Files)
		if err != nil {
			logger.Error("migrate postgres", slog.Any("error", err))
			os.Exit(1)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", slog.Any("versions", applied))
		}
		opts.Journal = shared.NewJournal(pool)
		opts.Idempotency = shared.NewIdempotencyStore(pool)
	} else {
		logger.Info("PG_DSN not set, reception journal disabled")
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
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
	opts.Alerts = jobClient

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	loader := catalog.NewLoader(backendClient)

	authService := auth.NewService(backendClient)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	receptionService := reception.NewService(
		reception.NewEngine(backendClient, loader),
		reception.NewRedisStore(redisClient, cfg.SessionTTL),
		logger,
		opts,
	)
	receptionHandler := reception.NewHandler(logger, receptionService)

	warehouseHandler := warehouse.NewHandler(logger, warehouse.NewService(loader, backendClient))

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		ReceptionHandler: receptionHandler,
		WarehouseHandler: warehouseHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
