package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// NewPool creates a pgx connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, config)
}

// pgLockNotAvailable is raised when lock_timeout expires while waiting on a
// row lock. Transient: the competing writer commits and a retried
// transaction sees the fresh row.
const pgLockNotAvailable = "55P03"

// inTx runs fn inside a transaction with a bounded lock wait. Lock-timeout
// failures retry a few times with backoff; every other error rolls back and
// propagates as-is.
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '3s'"); err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			if isLockTimeout(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return tx.Commit(ctx)
	})
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}
