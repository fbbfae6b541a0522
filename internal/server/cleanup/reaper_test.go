package cleanup

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/server/blobstore"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/memory"
	"github.com/dmitrijs2005/securedrop/internal/testutil"
	"github.com/dmitrijs2005/securedrop/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSweepBlobs hides the sweeper of the embedded store.
type noSweepBlobs struct {
	blobstore.Store
}

func seedShares(t *testing.T, store *memory.Store, now time.Time, n int, ttl time.Duration) {
	t.Helper()
	for i := range n {
		require.NoError(t, store.Create(context.Background(), &models.ShareRecord{
			ID:         fmt.Sprintf("11111111-0000-4000-8000-%012d", int(ttl.Seconds())*1000+i),
			Nonce:      make([]byte, 12),
			StorageRef: fmt.Sprintf("shares/ttl-%d/%d", int(ttl.Seconds()), i),
			SizeBytes:  1,
			ExpiresAt:  now.Add(ttl),
			CreatedAt:  now,
		}))
	}
}

func TestReaper_RunOnce_ExpiresInBatches(t *testing.T) {
	clock := testutil.FixedClock()
	store := memory.NewStore()
	store.SetClock(clock.Now)

	cfg := testConfig()
	cfg.CleanupBatchSize = 2

	seedShares(t, store, clock.Now(), 5, time.Hour)
	seedShares(t, store, clock.Now(), 3, 24*time.Hour)

	r := NewReaper(store, blobstore.NewMemoryStore(nil), cfg, discardLogger(), clock)

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Expired)

	clock.Advance(time.Hour)
	res, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Expired)

	evs, err := store.Claim(context.Background(), clock.Now(), 100, time.Minute)
	require.NoError(t, err)
	require.Len(t, evs, 5)
	for _, ev := range evs {
		assert.Equal(t, models.RemovalExpired, ev.Reason)
	}
}

func TestReaper_RunOnce_PrunesTombstonesAfterRetention(t *testing.T) {
	clock := testutil.FixedClock()
	store := memory.NewStore()
	store.SetClock(clock.Now)
	cfg := testConfig()

	seedShares(t, store, clock.Now(), 1, time.Hour)
	clock.Advance(time.Hour)

	r := NewReaper(store, blobstore.NewMemoryStore(nil), cfg, discardLogger(), clock)
	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)
	assert.Zero(t, res.Tombstones)

	// 720h max TTL plus 24h grace
	clock.Advance(744*time.Hour + time.Second)
	res, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Tombstones)
}

func TestReaper_RunOnce_SweepsOrphans(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blobstore.NewMemoryStore(nil)
	require.NoError(t, blobs.Put(ctx, "orphan", bytes.NewReader([]byte("x")), 1))
	require.NoError(t, blobs.Put(ctx, "live", bytes.NewReader([]byte("y")), 1))
	require.NoError(t, blobs.MarkOrphan(ctx, "orphan"))

	cfg := testConfig()
	cfg.OrphanGrace = 0
	time.Sleep(time.Millisecond)

	r := NewReaper(store, blobs, cfg, discardLogger(), timex.RealClock{})
	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Orphans)
	assert.False(t, blobs.Has("orphan"))
	assert.True(t, blobs.Has("live"))

	// stores with native expiry are left alone
	require.NoError(t, blobs.Put(ctx, "orphan2", bytes.NewReader([]byte("z")), 1))
	require.NoError(t, blobs.MarkOrphan(ctx, "orphan2"))
	time.Sleep(time.Millisecond)

	r = NewReaper(store, noSweepBlobs{blobs}, cfg, discardLogger(), timex.RealClock{})
	res, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Orphans)
	assert.True(t, blobs.Has("orphan2"))
}

func TestReaper_StartStop(t *testing.T) {
	clock := testutil.FixedClock()
	store := memory.NewStore()
	store.SetClock(clock.Now)
	seedShares(t, store, clock.Now().Add(-2*time.Hour), 1, time.Hour)

	cfg := testConfig()
	cfg.ReaperInterval = 10 * time.Millisecond

	r := NewReaper(store, blobstore.NewMemoryStore(nil), cfg, discardLogger(), clock)
	r.Start(context.Background())
	r.Start(context.Background())

	require.Eventually(t, func() bool {
		n, err := store.Pending(context.Background())
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
}
