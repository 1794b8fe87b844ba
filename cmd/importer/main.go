// Command importer loads YML catalog feeds into the storefront database.
//
//	importer [-async] [-inspect] [-json] feed.xml...
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/storefront/cmd/storefront/cli"
	"github.com/odyssey-erp/storefront/internal/app"
	"github.com/odyssey-erp/storefront/internal/catalog"
	"github.com/odyssey-erp/storefront/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping importer startup")
		return
	}
	os.Exit(run())
}

func run() int {
	async := flag.Bool("async", false, "enqueue one background task per file instead of importing now")
	inspect := flag.Bool("inspect", false, "only parse the files and print image statistics")
	jsonOut := flag.Bool("json", false, "print the report as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-async] [-inspect] [-json] feed.xml...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	opts := cli.ImportOptions{
		Files:      flag.Args(),
		Async:      *async,
		Inspect:    *inspect,
		JSONOutput: *jsonOut,
	}
	if len(opts.Files) == 0 {
		flag.Usage()
		return cli.ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.Inspect {
		return (&cli.ImportCLI{}).Command(ctx, opts)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return cli.ExitFailure
	}
	logger := app.NewLogger(cfg)

	if opts.Async {
		queue := jobs.NewClient(cfg.AsynqOpts())
		defer queue.Close()
		return (&cli.ImportCLI{Enqueuer: queue}).Command(ctx, opts)
	}

	res, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open resources", slog.Any("error", err))
		return cli.ExitFailure
	}
	defer res.Close(logger)

	store := catalog.NewStore(res.Pool)
	catalogService := catalog.NewService(store, catalog.NewCache(res.Redis, cfg.CacheTTL), logger)
	imp := app.NewCatalogImporter(cfg, store, catalogService, logger, nil)
	return (&cli.ImportCLI{Importer: imp, Stats: store}).Command(ctx, opts)
}
