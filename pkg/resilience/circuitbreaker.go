// Package resilience provides fault-tolerance primitives: a circuit breaker,
// exponential-backoff retry, and a context-based timeout wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen matches every rejection made by a CircuitBreaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError is returned by Execute when the breaker refuses a call. It
// matches ErrCircuitOpen and, when configured, the breaker's Unavailable
// error.
type OpenError struct {
	Name string
	// RetryAfter is the remaining cool-down. Zero means the breaker is
	// half-open and its trial slots are taken.
	RetryAfter  time.Duration
	unavailable error
}

func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit %s is open, retry after %v", e.Name, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit %s is half-open, trial request in flight", e.Name)
}

func (e *OpenError) Unwrap() []error {
	if e.unavailable == nil {
		return []error{ErrCircuitOpen}
	}
	return []error{ErrCircuitOpen, e.unavailable}
}

// State represents the current phase of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// Unavailable is wrapped into every rejection so callers can map an open
	// circuit onto their own error class, e.g. apperrors.ErrCacheUnavailable.
	Unavailable error
	// OnStateChange, if set, is called with the breaker lock held after
	// every transition. It must not call back into the breaker.
	OnStateChange func(name string, from, to State)
	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// CircuitBreaker counts consecutive failures and opens at the threshold.
// After ResetTimeout it lets HalfOpenMaxRequests trial requests through; one
// success closes it, one failure reopens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trials   int
}

// NewCircuitBreaker creates a closed CircuitBreaker, filling in defaults
// for zero config fields.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the circuit admits it and records the outcome. A
// refused call returns an *OpenError without running fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// GetState returns the current State of the circuit breaker.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the circuit breaker back to the Closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.logger.Info("circuit manually reset")
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		remaining := cb.cfg.ResetTimeout - cb.cfg.Now().Sub(cb.openedAt)
		if remaining > 0 {
			return cb.reject(remaining)
		}
		cb.transition(StateHalfOpen)
		cb.logger.Info("circuit half-open, admitting trial request", "cool_down", cb.cfg.ResetTimeout)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.cfg.HalfOpenMaxRequests {
			return cb.reject(0)
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) reject(retryAfter time.Duration) error {
	return &OpenError{Name: cb.name, RetryAfter: retryAfter, unavailable: cb.cfg.Unavailable}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil && cb.state == StateHalfOpen:
		cb.transition(StateClosed)
		cb.logger.Info("circuit closed after successful trial request")
	case err == nil:
		cb.failures = 0
	case cb.state == StateHalfOpen:
		cb.transition(StateOpen)
		cb.logger.Warn("circuit reopened, trial request failed", "error", err)
	default:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
			cb.logger.Warn("circuit opened", "consecutive_failures", cb.failures, "error", err)
		}
	}
}

// transition moves to state and resets the counters it owns; callers hold
// cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.trials = 0
	switch to {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	}
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
