package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/moneta-ledger/moneta/internal/export"
	jobmetrics "github.com/moneta-ledger/moneta/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const runTimeout = 2 * time.Minute

// Flusher writes cached ledger state back to the store.
type Flusher interface {
	FlushAll(ctx context.Context) error
}

// Exporter runs one incremental export.
type Exporter interface {
	Export(ctx context.Context) (export.Report, error)
}

// FlushJob periodically persists cached stock and ledger rows.
type FlushJob struct {
	Ledger  Flusher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewFlushJob wires dependencies for the flush handler.
func NewFlushJob(ledger Flusher, logger *slog.Logger, metrics *jobmetrics.Metrics) *FlushJob {
	return &FlushJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle processes ledger flush tasks.
func (j *FlushJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger flush: handler not configured")
	}
	payload, err := decodeTrigger(t)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskLedgerFlush)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskLedgerFlush).With(slog.String("reason", payload.reason()))
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	if err := j.Ledger.FlushAll(runCtx); err != nil {
		logger.Error("flush ledger", slog.Any("error", err))
		return err
	}
	logger.Info("flushed ledger", slog.Duration("duration", time.Since(start)))
	return nil
}

// ExportJob runs scheduled or triggered exports.
type ExportJob struct {
	Exporter Exporter
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewExportJob wires dependencies for the export handler.
func NewExportJob(exporter Exporter, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportJob {
	return &ExportJob{Exporter: exporter, Logger: logger, Metrics: metrics}
}

// Handle processes ledger export tasks.
func (j *ExportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Exporter == nil {
		return errors.New("ledger export: handler not configured")
	}
	payload, err := decodeTrigger(t)
	if err != nil {
		return asynq.SkipRetry
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskLedgerExport)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskLedgerExport).With(slog.String("reason", payload.reason()))
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	report, err := j.Exporter.Export(runCtx)
	if err != nil {
		logger.Error("export ledger", slog.String("run_id", report.RunID.String()), slog.Any("error", err))
		return err
	}
	metrics.AddExported("sales", report.Sales)
	metrics.AddExported("expenses", report.Expenses)
	metrics.AddExported("purchases", report.Purchases)
	metrics.AddExported("products", report.Products)
	logger.Info("exported ledger", slog.String("run_id", report.RunID.String()))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
