package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/odyssey-erp/storefront/internal/catalog"
	"github.com/odyssey-erp/storefront/internal/feed"
	"github.com/odyssey-erp/storefront/internal/importer"
)

// Exit codes returned by ImportCommand.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// BatchImporter imports several feed files in order.
type BatchImporter interface {
	ImportFiles(ctx context.Context, paths []string) ([]importer.FileResult, importer.Summary, error)
}

// StatsSource reports catalog totals after an import.
type StatsSource interface {
	Stats(ctx context.Context) (catalog.Stats, error)
}

// ImportCLI runs feed imports from the command line.
type ImportCLI struct {
	Importer BatchImporter
	Stats    StatsSource
	Enqueuer importer.Enqueuer
}

// ImportOptions holds the parsed flags of the import command.
type ImportOptions struct {
	Files      []string
	Async      bool
	Inspect    bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// FileReport is one line of the import report.
type FileReport struct {
	Path    string           `json:"path"`
	Summary importer.Summary `json:"summary"`
	Error   string           `json:"error,omitempty"`
}

// ImportReport is the JSON form of a synchronous run.
type ImportReport struct {
	Files   []FileReport     `json:"files"`
	Total   importer.Summary `json:"total"`
	Catalog *catalog.Stats   `json:"catalog,omitempty"`
}

// Command executes the import workflow and returns the process exit code.
func (c *ImportCLI) Command(ctx context.Context, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.Files) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "import: at least one feed file is required")
		return ExitUsage
	}
	if opts.Async && opts.Inspect {
		_, _ = fmt.Fprintln(opts.Stderr, "import: -async and -inspect are mutually exclusive")
		return ExitUsage
	}
	switch {
	case opts.Inspect:
		return c.inspect(opts)
	case opts.Async:
		return c.enqueue(ctx, opts)
	default:
		return c.run(ctx, opts)
	}
}

func (c *ImportCLI) inspect(opts ImportOptions) int {
	code := ExitOK
	var total feed.Stats
	for _, path := range opts.Files {
		doc, err := feed.ParseFile(path)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "%s: %v\n", path, err)
			code = ExitFailure
			continue
		}
		stats := feed.Inspect(doc)
		total.Add(stats)
		printFeedStats(opts.Stdout, filepath.Base(path), stats)
	}
	if len(opts.Files) > 1 {
		printFeedStats(opts.Stdout, "total", total)
	}
	return code
}

func printFeedStats(out io.Writer, label string, s feed.Stats) {
	_, _ = fmt.Fprintf(out, "%s: %d offers, %d with images (%.1f%%), %d images\n",
		label, s.Offers, s.OffersWithImages, s.Coverage(), s.Images)
}

func (c *ImportCLI) enqueue(ctx context.Context, opts ImportOptions) int {
	if c.Enqueuer == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "import: background queue not configured")
		return ExitFailure
	}
	code := ExitOK
	for _, path := range opts.Files {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		id, err := c.Enqueuer.EnqueueImport(ctx, abs, false)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "%s: enqueue: %v\n", path, err)
			code = ExitFailure
			continue
		}
		_, _ = fmt.Fprintf(opts.Stdout, "%s: queued as %s\n", path, id)
	}
	return code
}

func (c *ImportCLI) run(ctx context.Context, opts ImportOptions) int {
	if c.Importer == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "import: importer not configured")
		return ExitFailure
	}
	results, total, runErr := c.Importer.ImportFiles(ctx, opts.Files)

	report := ImportReport{Files: make([]FileReport, 0, len(results)), Total: total}
	code := ExitOK
	for _, res := range results {
		fr := FileReport{Path: res.Path, Summary: res.Summary}
		if res.Err != nil {
			fr.Error = res.Err.Error()
			code = ExitFailure
		}
		report.Files = append(report.Files, fr)
	}
	if runErr != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", runErr)
		code = ExitFailure
	}
	if c.Stats != nil && runErr == nil {
		stats, err := c.Stats.Stats(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import: catalog stats: %v\n", err)
		} else {
			report.Catalog = &stats
		}
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(report); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import: encode json: %v\n", err)
			return ExitFailure
		}
		return code
	}
	renderReport(opts.Stdout, report)
	return code
}

func renderReport(out io.Writer, report ImportReport) {
	for _, f := range report.Files {
		if f.Error != "" {
			_, _ = fmt.Fprintf(out, "%s: FAILED: %s\n", f.Path, f.Error)
			continue
		}
		printSummary(out, f.Path, f.Summary)
	}
	if len(report.Files) > 1 {
		printSummary(out, "total", report.Total)
	}
	if s := report.Catalog; s != nil {
		_, _ = fmt.Fprintf(out, "catalog: %d categories, %d products, %d images, %d products with images, %d without\n",
			s.Categories, s.Products, s.Images, s.ProductsWithImages, s.ProductsWithoutImages)
	}
}

func printSummary(out io.Writer, label string, s importer.Summary) {
	_, _ = fmt.Fprintf(out, "%s: imported %d/%d products (%d with images), %d categories, %d skipped, %d errors\n",
		label, s.ProductsImported, s.Total, s.ProductsWithImages, s.CategoriesImported, s.Skipped, s.Errors)
}
