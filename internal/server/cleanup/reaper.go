package cleanup

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/logging"
	"github.com/dmitrijs2005/securedrop/internal/server/blobstore"
	sc "github.com/dmitrijs2005/securedrop/internal/server/config"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/shares"
	"github.com/dmitrijs2005/securedrop/internal/timex"
)

// ReapResult summarises one reaper pass.
type ReapResult struct {
	Expired    int
	Tombstones int64
	Orphans    int
	Duration   time.Duration
}

// Reaper periodically removes expired share records, prunes id
// tombstones and sweeps orphan-marked blobs on stores without native
// expiry. Removing a record emits a removal event; the Worker deletes
// the blob.
type Reaper struct {
	shares    shares.Repository
	blobs     blobstore.Store
	log       logging.Logger
	clock     timex.Clock
	interval  time.Duration
	batch     int
	grace     time.Duration
	retention time.Duration
	timeout   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(shares shares.Repository, blobs blobstore.Store, config *sc.Config, log logging.Logger, clock timex.Clock) *Reaper {
	maxTTL := 0
	if len(config.AllowedTTLHours) > 0 {
		maxTTL = slices.Max(config.AllowedTTLHours)
	}
	return &Reaper{
		shares:   shares,
		blobs:    blobs,
		log:      log.With("component", "reaper"),
		clock:    clock,
		interval: config.ReaperInterval,
		batch:    config.CleanupBatchSize,
		grace:    config.OrphanGrace,
		// a tombstone outlives any record that could have carried its id
		retention: time.Duration(maxTTL)*time.Hour + config.OrphanGrace,
		timeout:   config.StoreTimeout,
	}
}

// Start runs the reaper in a goroutine: once immediately, then on every tick.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)

	r.log.Info(ctx, "reaper started", "interval", r.interval.String())
}

// Stop cancels the background loop and waits for the current pass.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info(context.Background(), "reaper stopped")
}

func (r *Reaper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Error(ctx, "reaper pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass. Expired records are removed in batches
// until none remain.
func (r *Reaper) RunOnce(ctx context.Context) (ReapResult, error) {
	start := time.Now()
	var res ReapResult
	defer func() {
		res.Duration = time.Since(start)
		reaperRunsTotal.Inc()
		reaperDurationSeconds.Observe(res.Duration.Seconds())
	}()

	now := r.clock.Now()
	for {
		var n int
		err := bounded(ctx, r.timeout, "delete expired", func(ctx context.Context) (err error) {
			n, err = r.shares.DeleteExpired(ctx, now, r.batch)
			return err
		})
		res.Expired += n
		reaperExpiredTotal.Add(float64(n))
		if err != nil {
			return res, fmt.Errorf("delete expired shares: %w", err)
		}
		if n < r.batch || ctx.Err() != nil {
			break
		}
	}

	var pruned int64
	err := bounded(ctx, r.timeout, "prune tombstones", func(ctx context.Context) (err error) {
		pruned, err = r.shares.PruneTombstones(ctx, now.Add(-r.retention))
		return err
	})
	if err != nil {
		return res, fmt.Errorf("prune tombstones: %w", err)
	}
	res.Tombstones = pruned

	if sweeper, ok := r.blobs.(blobstore.OrphanSweeper); ok {
		var swept int
		err := bounded(ctx, r.timeout, "sweep orphans", func(ctx context.Context) (err error) {
			swept, err = sweeper.SweepOrphans(ctx, now.Add(-r.grace))
			return err
		})
		res.Orphans = swept
		reaperOrphansTotal.Add(float64(swept))
		if err != nil {
			return res, fmt.Errorf("sweep orphans: %w", err)
		}
	}

	if res.Expired > 0 || res.Orphans > 0 {
		r.log.Info(ctx, "reaper pass",
			"expired", res.Expired,
			"tombstones_pruned", res.Tombstones,
			"orphans_swept", res.Orphans,
		)
	}
	return res, nil
}
