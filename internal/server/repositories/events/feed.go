// Package events is the durable change feed of share removals. Every
// removed record produces one event; the cleanup worker claims events,
// deletes the blob and acknowledges them.
package events

import (
	"context"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/server/models"
)

// Feed is an at-least-once queue of removal events.
//
// A claimed event is invisible to other consumers for the lease duration.
// If it is neither acked, retried nor dead-lettered before the lease runs
// out, it is delivered again.
type Feed interface {
	// Claim leases up to limit due events in sequence order.
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.RemovalEvent, error)
	// Ack removes a processed event. Acking an unknown seq is not an error.
	Ack(ctx context.Context, seq int64) error
	// Retry makes the event due again at the given time.
	Retry(ctx context.Context, seq int64, at time.Time, reason string) error
	// DeadLetter parks an event that exhausted its attempts. It stays in
	// the store for operators and is never claimed again.
	DeadLetter(ctx context.Context, seq int64, reason string) error
	// Pending counts events that are not dead-lettered.
	Pending(ctx context.Context) (int, error)
}
