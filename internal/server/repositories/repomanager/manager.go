// Package repomanager wires the metadata-store repositories for the
// configured backend and owns schema migrations.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/securedrop/internal/server/repositories/events"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/shares"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Shares() shares.Repository
	Events() events.Feed
	// WithTx runs fn against a shares.Repository whose writes commit or
	// roll back together.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo shares.Repository) error) error
	// Ping reports whether the metadata store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
