package resilience

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
)

// WithTimeout runs fn under a deadline of timeout. A non-positive timeout
// runs fn directly.
//
// When the deadline fires first the returned error wraps both
// apperrors.ErrTimeout (HTTP 503) and context.DeadlineExceeded, and
// context.Cause on fn's context reports the same AppError. Cancellation of
// the parent context is passed through unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	expired := apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable, "%s exceeded %v", name, timeout)
	deadlineCtx, cancel := context.WithTimeoutCause(ctx, timeout, expired)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(deadlineCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-deadlineCtx.Done():
		err = deadlineCtx.Err()
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", name, context.Cause(ctx))
	}
	if context.Cause(deadlineCtx) == expired {
		return fmt.Errorf("%w: %w", expired, context.DeadlineExceeded)
	}
	return err
}
