package events

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/dbx"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
)

// PostgresFeed reads the share_events table filled by the shares AFTER
// DELETE trigger.
type PostgresFeed struct {
	db dbx.DBTX
}

func NewPostgresFeed(db dbx.DBTX) *PostgresFeed {
	return &PostgresFeed{db: db}
}

// Claim uses SKIP LOCKED so that several workers can poll the same table
// without handing out an event twice inside one lease.
func (f *PostgresFeed) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.RemovalEvent, error) {
	query :=
		`UPDATE share_events
		SET attempts = attempts + 1, next_attempt_at = $2
		WHERE seq IN (
			SELECT seq FROM share_events
			WHERE NOT dead AND next_attempt_at <= $1
			ORDER BY seq
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING seq, share_id, storage_ref, reason, attempts, created_at`

	rows, err := f.db.QueryContext(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, common.StorageError("claim events", err)
	}
	defer rows.Close()

	var result []models.RemovalEvent
	for rows.Next() {
		var ev models.RemovalEvent
		var reason string
		if err := rows.Scan(&ev.Seq, &ev.ShareID, &ev.StorageRef, &reason, &ev.Attempts, &ev.CreatedAt); err != nil {
			return nil, common.StorageError("claim events", err)
		}
		ev.Reason = models.RemovalReason(reason)
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("claim events", err)
	}

	// RETURNING does not keep the subselect order
	slices.SortFunc(result, func(a, b models.RemovalEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return result, nil
}

func (f *PostgresFeed) Ack(ctx context.Context, seq int64) error {
	if _, err := f.db.ExecContext(ctx, `DELETE FROM share_events WHERE seq = $1`, seq); err != nil {
		return common.StorageError("ack event", err)
	}
	return nil
}

func (f *PostgresFeed) Retry(ctx context.Context, seq int64, at time.Time, reason string) error {
	query := `UPDATE share_events SET next_attempt_at = $2, last_error = $3 WHERE seq = $1`
	return f.execOne(ctx, "retry event", query, seq, at, reason)
}

func (f *PostgresFeed) DeadLetter(ctx context.Context, seq int64, reason string) error {
	query := `UPDATE share_events SET dead = TRUE, last_error = $2 WHERE seq = $1`
	return f.execOne(ctx, "dead-letter event", query, seq, reason)
}

func (f *PostgresFeed) Pending(ctx context.Context) (int, error) {
	var n int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM share_events WHERE NOT dead`).Scan(&n); err != nil {
		return 0, common.StorageError("count events", err)
	}
	return n, nil
}

func (f *PostgresFeed) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := f.db.ExecContext(ctx, query, args...)
	if err != nil {
		return common.StorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.StorageError(op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: seq %v: %w", op, args[0], common.ErrNotFound)
	}
	return nil
}
