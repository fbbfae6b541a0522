// Package services implements the share lifecycle: creation, time-bounded
// retrieval, one-time consumption and explicit deletion.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/logging"
	"github.com/dmitrijs2005/securedrop/internal/server/blobstore"
	sc "github.com/dmitrijs2005/securedrop/internal/server/config"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/shares"
	"github.com/dmitrijs2005/securedrop/internal/timex"
	"github.com/google/uuid"
)

const (
	NonceSize        = 12
	DefaultFilename  = "file.enc"
	maxFilenameBytes = 255

	// idAttempts bounds how many ids Create draws for one share.
	idAttempts = 3
)

// CreateRequest carries an already-encrypted upload.
type CreateRequest struct {
	Ciphertext        io.Reader
	Size              int64
	Nonce             []byte
	Filename          string
	TTLHours          int
	DestroyOnDownload bool
}

type ShareService struct {
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	config      *sc.Config
	log         logging.Logger
	clock       timex.Clock
	ids         IDGenerator
}

type Option func(*ShareService)

func WithClock(c timex.Clock) Option { return func(s *ShareService) { s.clock = c } }

func WithIDGenerator(g IDGenerator) Option { return func(s *ShareService) { s.ids = g } }

func NewShareService(repomanager repomanager.RepositoryManager, blobs blobstore.Store, config *sc.Config, log logging.Logger, opts ...Option) *ShareService {
	s := &ShareService{
		repomanager: repomanager,
		blobs:       blobs,
		config:      config,
		log:         log.With("component", "shares"),
		clock:       timex.RealClock{},
		ids:         UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ShareService) validate(req *CreateRequest) error {
	if req.Size <= 0 {
		return fmt.Errorf("%w: empty ciphertext", common.ErrValidation)
	}
	if req.Size > s.config.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", common.ErrPayloadTooLarge, req.Size, s.config.MaxUploadBytes)
	}
	if !slices.Contains(s.config.AllowedTTLHours, req.TTLHours) {
		return fmt.Errorf("%w: expiry of %d hours is not one of %v", common.ErrValidation, req.TTLHours, s.config.AllowedTTLHours)
	}
	if len(req.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes, got %d", common.ErrValidation, NonceSize, len(req.Nonce))
	}
	return nil
}

// SanitizeFilename keeps only the last path element of name, for display.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" || name == ".." || name == "" {
		return DefaultFilename
	}
	if len(name) > maxFilenameBytes {
		name = name[:maxFilenameBytes]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
	}
	return name
}

// Create stores the ciphertext and then its record. Nothing is written
// when validation fails. If the record cannot be written the blob is
// removed again, or marked as an orphan when removal fails too.
func (s *ShareService) Create(ctx context.Context, req CreateRequest) (string, error) {
	if err := s.validate(&req); err != nil {
		return "", err
	}

	now := s.clock.Now()
	rec := &models.ShareRecord{
		ID:                s.ids.NewID(),
		Nonce:             req.Nonce,
		Filename:          SanitizeFilename(req.Filename),
		StorageRef:        s.ids.NewStorageRef(now),
		SizeBytes:         req.Size,
		ExpiresAt:         now.Add(time.Duration(req.TTLHours) * time.Hour),
		DestroyOnDownload: req.DestroyOnDownload,
		CreatedAt:         now,
	}

	putCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	err := s.blobs.Put(putCtx, rec.StorageRef, req.Ciphertext, req.Size)
	cancel()
	if err != nil {
		sharesCreateFailedTotal.WithLabelValues("blob").Inc()
		// a partial upload may exist; it has no record either way
		s.reclaim(ctx, rec.StorageRef)
		return "", fmt.Errorf("store ciphertext: %w", err)
	}

	if err := s.insertRecord(ctx, rec); err != nil {
		sharesCreateFailedTotal.WithLabelValues("record").Inc()
		s.reclaim(ctx, rec.StorageRef)
		return "", fmt.Errorf("store share record: %w", err)
	}

	sharesCreatedTotal.Inc()
	s.log.Info(ctx, "share created",
		"file_id", rec.ID,
		"size_bytes", rec.SizeBytes,
		"ttl_hours", req.TTLHours,
		"destroy_on_download", rec.DestroyOnDownload,
	)
	return rec.ID, nil
}

// insertRecord writes rec, drawing a fresh id when the current one was
// already used. The blob key does not depend on the id, so it is kept.
func (s *ShareService) insertRecord(ctx context.Context, rec *models.ShareRecord) error {
	for attempt := 1; ; attempt++ {
		err := s.repomanager.Shares().Create(ctx, rec)
		if !errors.Is(err, common.ErrIDConflict) || attempt == idAttempts {
			return err
		}
		s.log.Warn(ctx, "file id already used, drawing a new one", "file_id", rec.ID, "attempt", attempt)
		rec.ID = s.ids.NewID()
	}
}

// reclaim removes a blob that no record references. It runs on a detached
// context so a cancelled request still cleans up.
func (s *ShareService) reclaim(ctx context.Context, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StoreTimeout)
	defer cancel()

	err := s.blobs.Delete(ctx, ref)
	if err == nil {
		orphansTotal.WithLabelValues("deleted").Inc()
		return
	}
	s.log.Warn(ctx, "orphan blob delete failed, marking", "storage_ref", ref, "error", err)

	if err := s.blobs.MarkOrphan(ctx, ref); err != nil {
		orphansTotal.WithLabelValues("unreclaimed").Inc()
		s.log.Error(ctx, "orphan blob left behind", "storage_ref", ref, "error", err)
		return
	}
	orphansTotal.WithLabelValues("marked").Inc()
}

// GetRetrievalInfo returns what a recipient needs to fetch and decrypt the
// file. Unknown, malformed, expired and consumed ids are all NotFound.
// It never changes state.
func (s *ShareService) GetRetrievalInfo(ctx context.Context, id string) (*models.RetrievalInfo, error) {
	if !validID(id) {
		return nil, common.ErrNotFound
	}

	rec, err := s.repomanager.Shares().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !rec.IsRetrievable(now) {
		return nil, common.ErrNotFound
	}

	ttl := s.capabilityTTL(now, rec.ExpiresAt)
	url, err := s.blobs.Capability(ctx, rec.StorageRef, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue capability: %w", err)
	}

	sharesRetrievedTotal.Inc()
	s.log.Debug(ctx, "capability issued", "file_id", rec.ID, "ttl", ttl.String())

	return &models.RetrievalInfo{
		ID:       rec.ID,
		Nonce:    rec.Nonce,
		Filename: rec.Filename,
		Capability: models.Capability{
			URL:       url,
			ExpiresAt: now.Add(ttl),
		},
		DestroyOnDownload: rec.DestroyOnDownload,
		ExpiresAt:         rec.ExpiresAt,
	}, nil
}

// capabilityTTL bounds the capability by the record's own expiry, in whole
// seconds and never below one second.
func (s *ShareService) capabilityTTL(now, expiresAt time.Time) time.Duration {
	ttl := min(s.config.CapabilityTTL, expiresAt.Sub(now)).Truncate(time.Second)
	return max(ttl, time.Second)
}

// Consume records a completed retrieval. For a one-time share exactly one
// concurrent caller succeeds; the record is then removed and its blob is
// reclaimed through the change feed. Reusable shares are unaffected.
func (s *ShareService) Consume(ctx context.Context, id string) error {
	if !validID(id) {
		return common.ErrNotFound
	}

	now := s.clock.Now()
	var destroyed bool
	err := s.repomanager.WithTx(ctx, func(ctx context.Context, repo shares.Repository) error {
		destroyed = false
		rec, err := repo.Consume(ctx, id, now)
		if err != nil {
			return err
		}
		if !rec.DestroyOnDownload {
			return nil
		}
		destroyed = true
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if destroyed {
		sharesConsumedTotal.Inc()
		s.log.Info(ctx, "one-time share consumed", "file_id", id)
	}
	return nil
}

// Delete handles an explicit delete request. It is idempotent: a missing
// share acknowledges as already deleted. Reusable shares are kept and
// expire on schedule; one-time shares are removed along with their blob.
func (s *ShareService) Delete(ctx context.Context, id string) (models.DeleteOutcome, error) {
	if !validID(id) {
		return "", fmt.Errorf("%w: invalid file id", common.ErrValidation)
	}

	outcome, err := s.delete(ctx, id)
	if err != nil {
		return "", err
	}
	sharesDeletedTotal.WithLabelValues(string(outcome)).Inc()
	s.log.Info(ctx, "delete requested", "file_id", id, "outcome", string(outcome))
	return outcome, nil
}

func (s *ShareService) delete(ctx context.Context, id string) (models.DeleteOutcome, error) {
	repo := s.repomanager.Shares()

	rec, err := repo.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return models.DeleteOutcomeAlreadyDeleted, nil
	}
	if err != nil {
		return "", err
	}

	if !rec.DestroyOnDownload {
		return models.DeleteOutcomeKept, nil
	}

	err = repo.Delete(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return models.DeleteOutcomeAlreadyDeleted, nil
	}
	if err != nil {
		return "", err
	}

	// The removal event guarantees reclamation; this only makes it prompt.
	blobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StoreTimeout)
	defer cancel()
	if err := s.blobs.Delete(blobCtx, rec.StorageRef); err != nil {
		s.log.Warn(ctx, "immediate blob delete failed, left to cleanup worker", "file_id", id, "error", err)
	}

	return models.DeleteOutcomeDeleted, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
