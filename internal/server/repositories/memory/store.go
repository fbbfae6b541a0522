// Package memory is an in-process metadata store with a change feed. It
// backs the single-process "memory" deployment and the service tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
)

type event struct {
	models.RemovalEvent
	nextAttemptAt time.Time
	lastError     string
	dead          bool
}

// Store implements shares.Repository and events.Feed over maps guarded by
// one mutex. Every removal appends to the feed, mirroring the Postgres
// trigger.
type Store struct {
	mu         sync.Mutex
	shares     map[string]models.ShareRecord
	tombstones map[string]time.Time
	events     map[int64]*event
	seq        int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		shares:     make(map[string]models.ShareRecord),
		tombstones: make(map[string]time.Time),
		events:     make(map[int64]*event),
		now:        time.Now,
	}
}

// SetClock replaces the time source used to classify removals.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Create(ctx context.Context, rec *models.ShareRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shares[rec.ID]; ok {
		return common.ErrIDConflict
	}
	if _, ok := s.tombstones[rec.ID]; ok {
		return common.ErrIDConflict
	}

	cp := *rec
	cp.Nonce = slices.Clone(rec.Nonce)
	cp.Consumed = false
	s.shares[rec.ID] = cp
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.ShareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.shares[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) Consume(ctx context.Context, id string, now time.Time) (*models.ShareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.shares[id]
	if !ok || rec.Consumed || !now.Before(rec.ExpiresAt) {
		return nil, common.ErrNotFound
	}

	rec.Consumed = rec.DestroyOnDownload
	s.shares[id] = rec
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.shares[id]
	if !ok {
		return common.ErrNotFound
	}
	s.removeLocked(rec)
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []models.ShareRecord
	for _, rec := range s.shares {
		if rec.IsExpired(now) {
			expired = append(expired, rec)
		}
	}
	slices.SortFunc(expired, func(a, b models.ShareRecord) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}

	for _, rec := range expired {
		s.removeLocked(rec)
	}
	return len(expired), nil
}

func (s *Store) PruneTombstones(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, at := range s.tombstones {
		if at.Before(before) {
			delete(s.tombstones, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) removeLocked(rec models.ShareRecord) {
	now := s.now()
	delete(s.shares, rec.ID)
	s.tombstones[rec.ID] = now

	reason := models.RemovalDeleted
	if rec.IsExpired(now) {
		reason = models.RemovalExpired
	}

	s.seq++
	s.events[s.seq] = &event{
		RemovalEvent: models.RemovalEvent{
			Seq:        s.seq,
			ShareID:    rec.ID,
			StorageRef: rec.StorageRef,
			Reason:     reason,
			CreatedAt:  now,
		},
		nextAttemptAt: now,
	}
}

func (s *Store) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.RemovalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*event
	for _, ev := range s.events {
		if !ev.dead && !ev.nextAttemptAt.After(now) {
			due = append(due, ev)
		}
	}
	slices.SortFunc(due, func(a, b *event) int { return cmp.Compare(a.Seq, b.Seq) })
	if len(due) > limit {
		due = due[:limit]
	}

	result := make([]models.RemovalEvent, 0, len(due))
	for _, ev := range due {
		ev.Attempts++
		ev.nextAttemptAt = now.Add(lease)
		result = append(result, ev.RemovalEvent)
	}
	return result, nil
}

func (s *Store) Ack(ctx context.Context, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, seq)
	return nil
}

func (s *Store) Retry(ctx context.Context, seq int64, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[seq]
	if !ok {
		return fmt.Errorf("retry event: seq %d: %w", seq, common.ErrNotFound)
	}
	ev.nextAttemptAt = at
	ev.lastError = reason
	return nil
}

func (s *Store) DeadLetter(ctx context.Context, seq int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[seq]
	if !ok {
		return fmt.Errorf("dead-letter event: seq %d: %w", seq, common.ErrNotFound)
	}
	ev.dead = true
	ev.lastError = reason
	return nil
}

func (s *Store) Pending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, ev := range s.events {
		if !ev.dead {
			n++
		}
	}
	return n, nil
}

// DeadLettered returns the parked events in sequence order.
func (s *Store) DeadLettered() []models.RemovalEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.RemovalEvent
	for _, ev := range s.events {
		if ev.dead {
			result = append(result, ev.RemovalEvent)
		}
	}
	slices.SortFunc(result, func(a, b models.RemovalEvent) int { return cmp.Compare(a.Seq, b.Seq) })
	return result
}
