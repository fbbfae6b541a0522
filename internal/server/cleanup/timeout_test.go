package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/server/blobstore"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/memory"
	"github.com/dmitrijs2005/securedrop/internal/testutil"
	"github.com/stretchr/testify/assert"
)

const stallTimeout = 50 * time.Millisecond

// stallingBlobs never finishes a Delete until its context ends.
type stallingBlobs struct {
	*blobstore.MemoryStore
}

func (stallingBlobs) Delete(ctx context.Context, ref string) error {
	<-ctx.Done()
	return ctx.Err()
}

// stallingFeed hangs on Claim.
type stallingFeed struct {
	*memory.Store
}

func (stallingFeed) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.RemovalEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stallingShares hangs on DeleteExpired.
type stallingShares struct {
	*memory.Store
}

func (stallingShares) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("still blocked after %s", d)
	}
}

func TestBounded(t *testing.T) {
	err := bounded(context.Background(), stallTimeout, "blob delete", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = bounded(ctx, stallTimeout, "op", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrStorageUnavailable, "caller cancellation is not an outage")

	boom := errors.New("boom")
	assert.Same(t, boom, bounded(context.Background(), 0, "op", func(context.Context) error { return boom }))
}

func TestWorker_StalledBlobDeleteIsBounded(t *testing.T) {
	clock := testutil.FixedClock()
	store := memory.NewStore()
	store.SetClock(clock.Now)

	f := &workerFixture{store: store, clock: clock, alerter: &recordingAlerter{},
		blobs: &scriptedBlobs{MemoryStore: blobstore.NewMemoryStore(nil)}}
	f.removeShare(t, 1)

	cfg := testConfig()
	cfg.StoreTimeout = stallTimeout
	w := NewWorker(store, stallingBlobs{f.blobs.MemoryStore}, f.alerter, cfg, discardLogger(),
		WithWorkerClock(clock), WithBackoff(fastBackoff))

	within(t, 2*time.Second, func() {
		n, err := w.RunOnce(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	// rescheduled, not acked and not yet dead-lettered
	assert.Equal(t, 1, pending(t, store))
	assert.Empty(t, store.DeadLettered())
	assert.Zero(t, f.alerter.count())
}

func TestWorker_StalledClaimIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.StoreTimeout = stallTimeout
	w := NewWorker(stallingFeed{memory.NewStore()}, blobstore.NewMemoryStore(nil), &recordingAlerter{}, cfg, discardLogger())

	within(t, 2*time.Second, func() {
		_, err := w.RunOnce(context.Background())
		assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	})
}

func TestReaper_StalledDeleteExpiredIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.StoreTimeout = stallTimeout
	r := NewReaper(stallingShares{memory.NewStore()}, blobstore.NewMemoryStore(nil), cfg, discardLogger(), testutil.FixedClock())

	within(t, 2*time.Second, func() {
		_, err := r.RunOnce(context.Background())
		assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	})
}
