package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/moneta-ledger/moneta/cmd/moneta/cli"
	"github.com/moneta-ledger/moneta/internal/app"
	"github.com/moneta-ledger/moneta/internal/catalog"
	"github.com/moneta-ledger/moneta/internal/checkpoint"
	"github.com/moneta-ledger/moneta/internal/export"
	"github.com/moneta-ledger/moneta/internal/finance"
	financehttp "github.com/moneta-ledger/moneta/internal/finance/http"
	jobmetrics "github.com/moneta-ledger/moneta/internal/jobs"
	"github.com/moneta-ledger/moneta/internal/ledger"
	"github.com/moneta-ledger/moneta/internal/observability"
	"github.com/moneta-ledger/moneta/internal/platform/async"
	"github.com/moneta-ledger/moneta/internal/platform/cache"
	"github.com/moneta-ledger/moneta/internal/platform/db"
	"github.com/moneta-ledger/moneta/internal/stats"
	"github.com/moneta-ledger/moneta/internal/store"
	"github.com/moneta-ledger/moneta/jobs"
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

	if err := run(ctx, cfg, logger, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("moneta", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "jobs":
		return jobsCommand(ctx, cfg, args)
	case "stats":
		return statsCommand(ctx, cfg, logger, args)
	default:
		return fmt.Errorf("unknown command %q (want serve, jobs or stats)", command)
	}
}

// buildLedger wires the repositories, stats and manager shared by the server
// and the CLI.
func buildLedger(ctx context.Context, cfg *app.Config, logger *slog.Logger, redisClient *redis.Client, metrics *observability.Metrics) (*finance.Manager, error) {
	pgPool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pgPool); err != nil {
			pgPool.Close()
			return nil, err
		}
	}
	gw := db.NewGateway(pgPool)

	workers := async.NewPool(cfg.PoolSize, logger)
	opts := store.Options{
		Cache:   store.CacheConfig{Capacity: cfg.CacheCapacity, TTL: cfg.CacheTTL},
		Pool:    workers,
		Logger:  logger,
		Metrics: observability.NewCacheMetrics(metrics.Registerer()),
	}
	products := catalog.NewProductRepository(gw, opts)
	sales := ledger.NewSaleRepository(gw, opts)
	expenses := ledger.NewExpenseRepository(gw, opts)
	purchases := ledger.NewPurchaseRepository(gw, opts)

	var statsCache *stats.Cache
	if redisClient != nil {
		statsCache = stats.NewCache(redisClient, cfg.StatsCacheTTL, logger)
	}
	aggregator := stats.NewAggregator(stats.AggregatorConfig{
		Sales:    sales,
		Expenses: expenses,
		Pool:     workers,
		Cache:    statsCache,
		Logger:   logger,
		Location: cfg.Location(),
	})

	manager := finance.NewManager(finance.Config{
		Products:   products,
		Sales:      sales,
		Expenses:   expenses,
		Purchases:  purchases,
		Checkpoint: checkpoint.NewStore(gw, logger),
		Stats:      aggregator,
		Store:      gw,
		Pool:       workers,
		Logger:     logger,
	})
	return manager, nil
}

func connectRedis(ctx context.Context, cfg *app.Config, logger *slog.Logger) *redis.Client {
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, stats cache and jobs disabled", slog.Any("error", err))
		return nil
	}
	return client
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	manager, err := buildLedger(ctx, cfg, logger, redisClient, metrics)
	if err != nil {
		return err
	}

	exporter, err := export.New(manager, export.Config{
		Dir:        cfg.ExportDir,
		AddToCache: cfg.ExportAddToCache,
		Logger:     logger,
	})
	if err != nil {
		_ = closeLedger(ctx, logger, manager)
		return err
	}

	jobHandler := jobs.NewHandler(nil, logger)
	workerDone := make(chan error, 1)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

		worker, err := newWorker(cfg, logger, redisOpts, manager, exporter, jobmetrics.NewMetrics(metrics.Registerer()))
		if err != nil {
			_ = closeLedger(ctx, logger, manager)
			return err
		}
		go func() { workerDone <- worker.Run(workerCtx) }()
	} else {
		close(workerDone)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		LedgerHandler: financehttp.NewHandler(logger, manager, exporter),
		JobHandler:    jobHandler,
		Metrics:       metrics,
	})
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	stopWorker()
	if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("worker stopped", slog.Any("error", err))
	}
	if err := closeLedger(ctx, logger, manager); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

type ledgerCloser interface {
	Close(ctx context.Context) error
}

// closeLedger flushes and closes the ledger. The flush runs detached from ctx,
// which is usually already cancelled by the shutdown signal.
func closeLedger(ctx context.Context, logger *slog.Logger, ledger ledgerCloser) error {
	if err := ledger.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Error("close ledger", slog.Any("error", err))
		return err
	}
	return nil
}

func newWorker(cfg *app.Config, logger *slog.Logger, redisOpts asynq.RedisClientOpt, manager *finance.Manager, exporter *export.Exporter, metrics *jobmetrics.Metrics) (*jobs.Worker, error) {
	flushJob := jobs.NewFlushJob(manager, logger, metrics)
	exportJob := jobs.NewExportJob(exporter, logger, metrics)

	var cron []jobs.CronRegistration
	if cfg.FlushCron != "" {
		task, err := jobs.NewFlushTask(jobs.TriggerPayload{})
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.FlushCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(0)}})
	}
	if cfg.ExportCron != "" {
		task, err := jobs.NewExportTask(jobs.TriggerPayload{})
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ExportCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(1)}})
	}

	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerFlush, Handler: flushJob.Handle},
			{Type: jobs.TaskLedgerExport, Handler: exportJob.Handle},
		},
		Cron: cron,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	scheduled := fs.Int("scheduled", 10, "number of scheduled tasks to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer c.Close()

	switch fs.Arg(0) {
	case "trigger":
		info, err := c.Trigger(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "inspect", "":
		qs, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", qs.Queue, qs.Pending, qs.Active, qs.Scheduled, qs.Retry)
		tasks, err := c.ListScheduled(ctx, *scheduled)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("  %s %s at %s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("unknown jobs command %q (want trigger or inspect)", fs.Arg(0))
	}
	return nil
}

func statsCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) (err error) {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	lang := fs.String("lang", "ru", "language used for number grouping")
	if err := fs.Parse(args); err != nil {
		return err
	}
	year := 0
	if fs.NArg() > 0 {
		y, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid year %q", fs.Arg(0))
		}
		year = y
	}
	tag, err := language.Parse(*lang)
	if err != nil {
		return fmt.Errorf("invalid language %q: %w", *lang, err)
	}

	cfg.MigrateOnStart = false
	manager, err := buildLedger(ctx, cfg, logger, nil, observability.NewMetrics())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeLedger(ctx, logger, manager))
	}()

	months, err := manager.YearlyStats(ctx, year).Await(ctx)
	if err != nil {
		return err
	}
	summary, err := manager.YearSummary(ctx, year).Await(ctx)
	if err != nil {
		return err
	}
	return cli.PrintYear(os.Stdout, tag, months, summary)
}
