package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/dbx"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
)

const shareColumns = `id, nonce, filename, storage_ref, size_bytes, expires_at, destroy_on_download, consumed, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.ShareRecord) error {

	query :=
		`INSERT INTO shares (id, nonce, filename, storage_ref, size_bytes, expires_at, destroy_on_download, consumed, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, FALSE, $8
		WHERE NOT EXISTS (SELECT 1 FROM share_tombstones WHERE id = $1)
		ON CONFLICT (id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Nonce, rec.Filename, rec.StorageRef, rec.SizeBytes, rec.ExpiresAt, rec.DestroyOnDownload, rec.CreatedAt)
	if err != nil {
		return common.StorageError("create share", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return common.StorageError("create share", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrIDConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1`

	rec, err := scanShare(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.StorageError("get share", err)
	}
	return rec, nil
}

// Consume relies on a single conditional UPDATE: the row lock taken by
// Postgres serializes concurrent callers, and only one of them can still
// see consumed = FALSE for a one-time share.
func (r *PostgresRepository) Consume(ctx context.Context, id string, now time.Time) (*models.ShareRecord, error) {
	query :=
		`UPDATE shares SET consumed = destroy_on_download
		WHERE id = $1 AND consumed = FALSE AND expires_at > $2
		RETURNING ` + shareColumns

	rec, err := scanShare(r.db.QueryRowContext(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.StorageError("consume share", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {

	query := `DELETE FROM shares WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return common.StorageError("delete share", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return common.StorageError("delete share", err)
	}

	if rowsAffected == 0 {
		return common.ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	query :=
		`DELETE FROM shares WHERE id IN (
			SELECT id FROM shares
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`

	result, err := r.db.ExecContext(ctx, query, now, limit)
	if err != nil {
		return 0, common.StorageError("delete expired shares", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, common.StorageError("delete expired shares", err)
	}
	return int(n), nil
}

func (r *PostgresRepository) PruneTombstones(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM share_tombstones WHERE removed_at < $1`, before)
	if err != nil {
		return 0, common.StorageError("prune tombstones", err)
	}
	return result.RowsAffected()
}

func scanShare(row *sql.Row) (*models.ShareRecord, error) {
	rec := &models.ShareRecord{}
	err := row.Scan(&rec.ID, &rec.Nonce, &rec.Filename, &rec.StorageRef, &rec.SizeBytes,
		&rec.ExpiresAt, &rec.DestroyOnDownload, &rec.Consumed, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
