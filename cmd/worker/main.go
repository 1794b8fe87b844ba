package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/storefront/internal/app"
	"github.com/odyssey-erp/storefront/internal/catalog"
	jobmetrics "github.com/odyssey-erp/storefront/internal/jobs"
	"github.com/odyssey-erp/storefront/internal/observability"
	"github.com/odyssey-erp/storefront/jobs"
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

	res, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open resources", slog.Any("error", err))
		os.Exit(1)
	}
	defer res.Close(logger)

	store := catalog.NewStore(res.Pool)
	catalogService := catalog.NewService(store, catalog.NewCache(res.Redis, cfg.CacheTTL), logger)
	importMetrics := observability.NewImportMetrics(prometheus.DefaultRegisterer)
	catalogImporter := app.NewCatalogImporter(cfg, store, catalogService, logger, importMetrics)

	importJob := jobs.NewCatalogImportJob(catalogImporter, logger, jobmetrics.NewMetrics(nil))

	cron, err := jobs.ImportCron(cfg.ImportCron, cfg.ImportFeedPaths)
	if err != nil {
		logger.Error("build import schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.AsynqOpts(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogImport, Handler: importJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("scheduled_feeds", len(cron)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
