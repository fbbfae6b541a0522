package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/securedrop/internal/server/repositories/events"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/memory"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/shares"
)

// MemoryRepositoryManager serves both repositories from one memory.Store.
// Nothing survives a restart.
type MemoryRepositoryManager struct {
	store *memory.Store
	// txMu serializes WithTx callers; single operations are already atomic.
	txMu sync.Mutex
}

func NewMemoryRepositoryManager(store *memory.Store) *MemoryRepositoryManager {
	if store == nil {
		store = memory.NewStore()
	}
	return &MemoryRepositoryManager{store: store}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) Shares() shares.Repository { return m.store }

func (m *MemoryRepositoryManager) Events() events.Feed { return m.store }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repo shares.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m.store)
}

func (m *MemoryRepositoryManager) Ping(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }

// Store exposes the underlying store for inspection.
func (m *MemoryRepositoryManager) Store() *memory.Store { return m.store }
