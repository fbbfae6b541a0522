package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/dbx"
	"github.com/dmitrijs2005/securedrop/internal/server/migrations"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/events"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/shares"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories over one
// connection pool.
type PostgresRepositoryManager struct {
	db *sql.DB
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// NewPostgresRepositoryManager opens a pgx-backed pool for dsn and checks connectivity.
func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, common.StorageError("ping database", err)
	}
	return &PostgresRepositoryManager{db: db}, nil
}

// NewPostgresRepositoryManagerFromDB wraps an existing pool.
func NewPostgresRepositoryManagerFromDB(db *sql.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{db: db}
}

// Shares returns a shares.Repository bound to the pool.
func (m *PostgresRepositoryManager) Shares() shares.Repository {
	return shares.NewPostgresRepository(m.db)
}

// Events returns an events.Feed bound to the pool.
func (m *PostgresRepositoryManager) Events() events.Feed {
	return events.NewPostgresFeed(m.db)
}

// txBackoff bounds replays of transactions Postgres aborted under contention.
var txBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(3, retry.WithJitterPercent(20, retry.NewExponential(20*time.Millisecond)))
}

// WithTx runs fn over a transactional shares repository, replaying it on
// serialization failures and deadlocks.
func (m *PostgresRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repo shares.Repository) error) error {
	return dbx.RetryTx(ctx, m.db, nil, txBackoff(), func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, shares.NewPostgresRepository(tx))
	})
}

// RunMigrations sets up goose with the embedded migrations and runs them.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}

func (m *PostgresRepositoryManager) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return common.StorageError("ping database", err)
	}
	return nil
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
