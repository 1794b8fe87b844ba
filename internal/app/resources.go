package app

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/storefront/internal/catalog"
	"github.com/odyssey-erp/storefront/internal/importer"
	"github.com/odyssey-erp/storefront/internal/platform/cache"
	"github.com/odyssey-erp/storefront/internal/platform/db"
)

// Resources holds the long-lived connections shared by the binaries.
type Resources struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Open connects to PostgreSQL and Redis and applies the schema when
// AUTO_MIGRATE is set.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Resources, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Resources{Pool: pool, Redis: client}, nil
}

// Close releases both connections.
func (r *Resources) Close(logger *slog.Logger) {
	if r == nil {
		return
	}
	if err := r.Redis.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
	r.Pool.Close()
}

// AsynqOpts returns the queue connection for the configured Redis.
func (c *Config) AsynqOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewCatalogImporter builds an Importer that writes through store. inv is
// called after each run that imported something.
func NewCatalogImporter(cfg *Config, store *catalog.PGStore, inv importer.Invalidator, logger *slog.Logger, recorder importer.Recorder) *importer.Importer {
	return importer.New(store, importer.Options{
		ProgressEvery: cfg.ImportProgressEvery,
		Logger:        logger,
		Recorder:      recorder,
		Invalidator:   inv,
	})
}
