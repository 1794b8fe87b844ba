package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/storefront/internal/feed"
	"github.com/odyssey-erp/storefront/internal/importer"
	jobmetrics "github.com/odyssey-erp/storefront/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FileImporter imports a single feed file.
type FileImporter interface {
	ImportFile(ctx context.Context, path string) (importer.Summary, error)
}

// CatalogImportJob runs queued feed imports.
type CatalogImportJob struct {
	Importer FileImporter
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewCatalogImportJob wires dependencies for the import handler.
func NewCatalogImportJob(imp FileImporter, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogImportJob {
	return &CatalogImportJob{Importer: imp, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCatalogImport tasks. Malformed payloads and feeds are
// not retried.
func (j *CatalogImportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Importer == nil {
		return errors.New("catalog import: handler not configured")
	}
	var payload ImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Path == "" {
		return fmt.Errorf("catalog import: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskCatalogImport)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("path", payload.Path))
	if payload.RemoveAfter {
		defer func() {
			// Keep the upload around for a retry unless the run is final.
			if resultErr != nil && !errors.Is(resultErr, asynq.SkipRetry) {
				return
			}
			if err := os.Remove(payload.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("remove imported feed", slog.Any("error", err))
			}
		}()
	}

	sum, err := j.Importer.ImportFile(ctx, payload.Path)
	switch {
	case errors.Is(err, feed.ErrMalformedFeed), errors.Is(err, os.ErrNotExist):
		logger.Error("catalog import rejected", slog.Any("error", err))
		return fmt.Errorf("catalog import: %v: %w", err, asynq.SkipRetry)
	case err != nil:
		logger.Error("catalog import failed", slog.Any("error", err))
		return err
	}
	logger.Info("catalog import task done",
		slog.String("run_id", sum.RunID),
		slog.Int("imported", sum.ProductsImported),
		slog.Int("errors", sum.Errors))
	return nil
}

func (j *CatalogImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *CatalogImportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
