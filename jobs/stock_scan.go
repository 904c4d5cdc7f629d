package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/smart-economato/economato/internal/catalog"
	jobmetrics "github.com/smart-economato/economato/internal/jobs"
)

// LowStockSource lists products below their minimum stock.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]catalog.Product, error)
}

// StockScanJob reports products whose stock dropped below the minimum.
type StockScanJob struct {
	Source  LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockScanJob initialises the stock scan handler.
func NewStockScanJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockScanJob {
	return &StockScanJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes one scan.
func (j *StockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("stock scan: handler not configured")
	}
	var payload StockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Reason == "" {
		payload.Reason = ReasonScheduled
	}

	tracker := j.Metrics.Track(TaskStockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	products, err := j.Source.LowStock(ctx)
	if err != nil {
		logger.Error("stock scan failed", slog.Any("error", err))
		return err
	}
	for _, p := range products {
		logger.Warn("product below minimum stock",
			slog.String("product_id", p.ID),
			slog.String("nombre", p.Nombre),
			slog.Float64("stock", p.Stock),
			slog.Float64("stock_minimo", p.StockMinimo),
			slog.String("categoria", p.Categoria),
		)
	}
	j.Metrics.SetLowStock(len(products))
	logger.Info("stock scan completed", slog.Int("low_stock", len(products)))
	return nil
}

func (j *StockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
