package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
)

// bounded runs fn with its own deadline of d. A call that runs out of time
// while ctx is still live is reported as ErrStorageUnavailable, so a
// stalled store is retried like any other outage. d <= 0 disables the
// deadline.
func bounded(ctx context.Context, d time.Duration, op string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return common.StorageError(op+" timed out", err)
	}
	return err
}
