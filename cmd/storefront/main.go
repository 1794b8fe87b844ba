package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/storefront/cmd/storefront/cli"
	"github.com/odyssey-erp/storefront/internal/app"
	"github.com/odyssey-erp/storefront/internal/auth"
	"github.com/odyssey-erp/storefront/internal/catalog"
	"github.com/odyssey-erp/storefront/internal/importer"
	"github.com/odyssey-erp/storefront/internal/observability"
	"github.com/odyssey-erp/storefront/internal/orders"
	"github.com/odyssey-erp/storefront/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	res, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open resources", slog.Any("error", err))
		os.Exit(1)
	}
	defer res.Close(logger)

	metrics := observability.NewMetrics()
	importMetrics := observability.NewImportMetrics(metrics.Registerer())

	authService := auth.NewService(auth.NewRepository(res.Pool), auth.NewTokenStore(res.Redis, cfg.TokenTTL))
	authHandler := auth.NewHandler(logger, authService)

	store := catalog.NewStore(res.Pool)
	catalogService := catalog.NewService(store, catalog.NewCache(res.Redis, cfg.CacheTTL), logger)
	catalogHandler := catalog.NewHandler(logger, catalogService, authHandler.RequireToken)

	ordersService := orders.NewService(orders.NewRepository(res.Pool), logger)
	ordersHandler := orders.NewHandler(logger, ordersService, authHandler.RequireToken)

	queue := jobs.NewClient(cfg.AsynqOpts())
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(cfg.AsynqOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	catalogImporter := app.NewCatalogImporter(cfg, store, catalogService, logger, importMetrics)
	importHandler := importer.NewHandler(logger, catalogImporter, queue, cfg.ImportUploadDir)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    authHandler,
		CatalogHandler: catalogHandler,
		OrdersHandler:  ordersHandler,
		ImportHandler:  importHandler,
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Checks: map[string]app.HealthCheck{
			"postgres": res.Pool.Ping,
			"redis":    func(ctx context.Context) error { return res.Redis.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout(),
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runJobs handles "storefront jobs trigger|inspect|scheduled".
func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: storefront jobs trigger|inspect|scheduled")
		return cli.ExitUsage
	}
	jobsCLI := cli.NewJobsCLI(cfg.AsynqOpts())
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		ids, err := jobsCLI.Trigger(ctx, jobs.TaskCatalogImport, cfg.ImportFeedPaths)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return cli.ExitFailure
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	case "inspect":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs inspect: %v\n", err)
			return cli.ExitFailure
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs scheduled: %v\n", err)
			return cli.ExitFailure
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown command %q\n", args[0])
		return cli.ExitUsage
	}
	return cli.ExitOK
}
