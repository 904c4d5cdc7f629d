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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smart-economato/economato/internal/app"
	"github.com/smart-economato/economato/internal/backend"
	"github.com/smart-economato/economato/internal/catalog"
	jobmetrics "github.com/smart-economato/economato/internal/jobs"
	"github.com/smart-economato/economato/internal/warehouse"
	"github.com/smart-economato/economato/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	stockService := warehouse.NewService(catalog.NewLoader(backendClient), backendClient)
	stockJob := jobs.NewStockScanJob(stockService, logger, jobmetrics.NewMetrics(nil))

	scanTask, err := jobs.NewStockScanTask(jobs.ReasonScheduled, time.Now())
	if err != nil {
		logger.Error("build stock scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockScan, Handler: stockJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StockScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting worker", slog.String("stock_scan_cron", cfg.StockScanCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
