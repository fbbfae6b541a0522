// Package shares persists ShareRecords in the metadata store.
package shares

import (
	"context"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/server/models"
)

// Repository is the metadata store of share records.
//
// Removing a record by any path (Delete or DeleteExpired) must emit a
// removal event on the change feed and retire the id for good.
type Repository interface {
	// Create inserts rec. An id that exists or was used before yields common.ErrIDConflict.
	Create(ctx context.Context, rec *models.ShareRecord) error
	// Get returns the record or common.ErrNotFound. It does not filter expired records.
	Get(ctx context.Context, id string) (*models.ShareRecord, error)
	// Consume atomically marks a live, unconsumed record as retrieved.
	// For one-time shares only the first caller gets the record; everyone
	// else, and every caller after expiry, gets common.ErrNotFound.
	Consume(ctx context.Context, id string, now time.Time) (*models.ShareRecord, error)
	// Delete removes the record or returns common.ErrNotFound.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes up to limit records with expiresAt <= now.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
	// PruneTombstones forgets retired ids removed before the given time.
	PruneTombstones(ctx context.Context, before time.Time) (int64, error)
}
