// Package dbx provides the DB helpers shared by the share and event
// repositories: DBTX, implemented by both *sql.DB and *sql.Tx, and
// transaction runners that commit, roll back and replay.
package dbx

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// DBTX is the subset of database/sql used by the repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLSTATEs after which Postgres expects the whole transaction to be replayed.
const (
	stateSerializationFailure = "40001"
	stateDeadlockDetected     = "40P01"
)

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back on error or panic; panics are rethrown.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// RetryTx is WithTx replayed with backoff b while Postgres aborts it with a
// serialization failure or a deadlock. fn must be safe to run again.
//
//	err := dbx.RetryTx(ctx, db, nil, retry.WithMaxRetries(3, retry.NewExponential(20*time.Millisecond)),
//	    func(ctx context.Context, tx dbx.DBTX) error {
//	        _, err := tx.ExecContext(ctx, "DELETE FROM shares WHERE id = $1", id)
//	        return err
//	    })
func RetryTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, b retry.Backoff, fn func(ctx context.Context, tx DBTX) error) error {
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := WithTx(ctx, db, opts, fn)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsRetryable reports whether err is a Postgres serialization failure or
// deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == stateSerializationFailure || pgErr.Code == stateDeadlockDetected
}
