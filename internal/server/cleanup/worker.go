// Package cleanup reclaims blobs of removed shares. The Worker drains the
// removal feed and deletes blobs; the Reaper expires records and sweeps
// orphan-marked blobs so that the feed has something to drain.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/logging"
	"github.com/dmitrijs2005/securedrop/internal/server/alerting"
	"github.com/dmitrijs2005/securedrop/internal/server/blobstore"
	sc "github.com/dmitrijs2005/securedrop/internal/server/config"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/events"
	"github.com/dmitrijs2005/securedrop/internal/timex"
	"github.com/sethvargo/go-retry"
)

const maxRetryDelay = 30 * time.Minute

// Worker deletes the blob named by each removal event. Deletes are
// idempotent, so redelivery after a crash is harmless.
type Worker struct {
	feed        events.Feed
	blobs       blobstore.Store
	alerter     alerting.Alerter
	log         logging.Logger
	clock       timex.Clock
	poll        time.Duration
	lease       time.Duration
	batch       int
	maxAttempts int
	timeout     time.Duration
	backoff     func() retry.Backoff
}

type WorkerOption func(*Worker)

func WithWorkerClock(c timex.Clock) WorkerOption { return func(w *Worker) { w.clock = c } }

// WithBackoff replaces the in-process retry policy for a single delete.
func WithBackoff(b func() retry.Backoff) WorkerOption {
	return func(w *Worker) { w.backoff = b }
}

func NewWorker(feed events.Feed, blobs blobstore.Store, alerter alerting.Alerter, config *sc.Config, log logging.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		feed:        feed,
		blobs:       blobs,
		alerter:     alerter,
		log:         log.With("component", "cleanup"),
		clock:       timex.RealClock{},
		poll:        config.CleanupPollInterval,
		lease:       config.CleanupLease,
		batch:       config.CleanupBatchSize,
		maxAttempts: config.CleanupMaxAttempts,
		timeout:     config.StoreTimeout,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func defaultBackoff() retry.Backoff {
	b := retry.NewExponential(200 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(3, b)
}

// Run drains the feed until ctx is cancelled. A full batch is followed
// immediately by the next one; otherwise the worker sleeps for the poll
// interval.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info(ctx, "cleanup worker started", "poll", w.poll.String(), "batch", w.batch)
	defer w.log.Info(context.WithoutCancel(ctx), "cleanup worker stopped")

	for {
		n, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.log.Error(ctx, "cleanup pass failed", "error", err)
		}
		if err == nil && n == w.batch {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims one batch and handles every event in it. It returns the
// number of events claimed. Every store call is bounded by StoreTimeout.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	var evs []models.RemovalEvent
	err := bounded(ctx, w.timeout, "claim", func(ctx context.Context) (err error) {
		evs, err = w.feed.Claim(ctx, w.clock.Now(), w.batch, w.lease)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("claim removal events: %w", err)
	}

	for _, ev := range evs {
		if ctx.Err() != nil {
			// unhandled events come back when their lease runs out
			break
		}
		w.handle(ctx, ev)
	}

	var pending int
	err = bounded(ctx, w.timeout, "pending", func(ctx context.Context) (err error) {
		pending, err = w.feed.Pending(ctx)
		return err
	})
	if err == nil {
		feedPending.Set(float64(pending))
	}
	return len(evs), nil
}

func (w *Worker) handle(ctx context.Context, ev models.RemovalEvent) {
	log := w.log.With("seq", ev.Seq, "file_id", ev.ShareID, "attempt", ev.Attempts)

	err := w.deleteBlob(ctx, ev.StorageRef)
	if err == nil {
		err := bounded(ctx, w.timeout, "ack", func(ctx context.Context) error {
			return w.feed.Ack(ctx, ev.Seq)
		})
		if err != nil {
			log.Warn(ctx, "ack failed, event will be redelivered", "error", err)
			return
		}
		eventsTotal.WithLabelValues("deleted").Inc()
		log.Debug(ctx, "blob deleted", "reason", string(ev.Reason))
		return
	}

	if ctx.Err() != nil {
		return
	}

	if ev.Attempts < w.maxAttempts && !errors.Is(err, common.ErrValidation) {
		at := w.clock.Now().Add(retryDelay(w.poll, ev.Attempts))
		rerr := bounded(ctx, w.timeout, "reschedule", func(ctx context.Context) error {
			return w.feed.Retry(ctx, ev.Seq, at, err.Error())
		})
		if rerr != nil {
			log.Warn(ctx, "reschedule failed, event will be redelivered", "error", rerr)
		}
		eventsTotal.WithLabelValues("retried").Inc()
		log.Warn(ctx, "blob delete failed, rescheduled", "error", err, "next_attempt_at", at)
		return
	}

	derr := bounded(ctx, w.timeout, "dead-letter", func(ctx context.Context) error {
		return w.feed.DeadLetter(ctx, ev.Seq, err.Error())
	})
	if derr != nil {
		log.Error(ctx, "dead-letter failed", "error", derr)
		return
	}
	eventsTotal.WithLabelValues("dead_lettered").Inc()
	w.alerter.Alert(ctx, ev, err.Error())
}

// deleteBlob retries transient store failures a few times before the
// event goes back to the feed. Each attempt has its own deadline; a
// panicking store counts as a failure.
func (w *Worker) deleteBlob(ctx context.Context, ref string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("blob delete panicked: %v", r)
		}
	}()

	return retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		err := bounded(ctx, w.timeout, "blob delete", func(ctx context.Context) error {
			return w.blobs.Delete(ctx, ref)
		})
		if errors.Is(err, common.ErrStorageUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// retryDelay doubles from base with each attempt, up to maxRetryDelay.
func retryDelay(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}
