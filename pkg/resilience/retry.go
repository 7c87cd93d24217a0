package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
)

// RetryConfig controls backoff. Zero fields take defaults.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable reports whether a failure is worth another attempt. Nil
	// means Transient.
	Retryable func(error) bool
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	if c.Retryable == nil {
		c.Retryable = Transient
	}
}

// backoff returns the pause after the given failed attempt (1-based),
// jittered and capped at MaxDelay.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	d += d * c.JitterFraction * (2*rand.Float64() - 1)
	switch {
	case d > float64(c.MaxDelay):
		return c.MaxDelay
	case d <= 0:
		return c.InitialDelay
	}
	return time.Duration(d)
}

// Transient treats caller mistakes (invalid input, not found) and
// cancellation as permanent and everything else as worth retrying.
func Transient(err error) bool {
	return !errors.Is(err, apperrors.ErrInvalidInput) &&
		!errors.Is(err, apperrors.ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

// Retry calls fn until it succeeds, the attempts run out, ctx is done, or
// fn fails with an error cfg.Retryable rejects. Permanent failures are
// returned as is, so their error class survives.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		switch {
		case err == nil:
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		case !cfg.Retryable(err):
			return err
		case attempt == cfg.MaxAttempts:
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		case ctx.Err() != nil:
			return fmt.Errorf("%s: aborted after attempt %d: %w", name, attempt, ctx.Err())
		}

		delay := cfg.backoff(attempt)
		logger.Warn("attempt failed, backing off",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: aborted during backoff: %w (last error: %v)", name, ctx.Err(), err)
		}
	}
}
