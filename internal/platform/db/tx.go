package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxOptions is the isolation used by WithTx.
var TxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead}

// WithTx executes fn within a transaction using the RepeatableRead isolation level.
// The transaction is rolled back when fn returns an error.
func WithTx(ctx context.Context, pool Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, TxOptions)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
