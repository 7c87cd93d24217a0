// Package cache memoises context search results in Redis. Entries are keyed
// by the document fingerprint, so a restart on a different document never
// serves stale windows.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "ctx:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats reports cache effectiveness since start.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Breaker string  `json:"breaker"`
}

type QueryCache struct {
	store       Store
	ttl         time.Duration
	fingerprint string
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	group       singleflight.Group
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
	errors      atomic.Int64
}

// NewBreaker returns the breaker guarding Redis. Its rejections wrap
// apperrors.ErrCacheUnavailable.
func NewBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	cfg.Unavailable = apperrors.ErrCacheUnavailable
	return resilience.NewCircuitBreaker("redis-cache", cfg)
}

// New builds a cache for the document identified by fingerprint. breaker
// and m may be nil.
func New(store Store, ttl time.Duration, fingerprint string, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *QueryCache {
	if breaker == nil {
		breaker = NewBreaker(resilience.CircuitBreakerConfig{})
	}
	return &QueryCache{
		store:       store,
		ttl:         ttl,
		fingerprint: fingerprint,
		breaker:     breaker,
		metrics:     m,
		logger:      slog.Default().With("component", "query-cache"),
	}
}

// Get looks up a cached result. Redis failures count as misses.
func (c *QueryCache) Get(ctx context.Context, canonical string, width int) (*searcher.Result, bool) {
	key := c.buildKey(canonical, width)
	var data []byte
	err := c.breaker.Execute(func() error {
		var getErr error
		data, getErr = c.store.Get(ctx, key)
		if pkgredis.IsNilError(getErr) {
			data = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	if data == nil {
		c.recordMiss()
		return nil, false
	}
	var result searcher.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

// Set stores result. Failures are logged and otherwise ignored.
func (c *QueryCache) Set(ctx context.Context, canonical string, width int, result *searcher.Result) {
	key := c.buildKey(canonical, width)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes it once per key across
// concurrent callers.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	canonical string,
	width int,
	compute func() (*searcher.Result, error),
) (*searcher.Result, bool, error) {
	if result, ok := c.Get(ctx, canonical, width); ok {
		return result, true, nil
	}
	key := c.buildKey(canonical, width)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(context.WithoutCancel(ctx), canonical, width, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*searcher.Result), false, nil
}

// Invalidate deletes every entry for the current document. Failures,
// including an open breaker, wrap apperrors.ErrCacheUnavailable.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	pattern := keyPrefix + c.fingerprintPrefix() + ":*"
	var deleted int64
	err := c.breaker.Execute(func() error {
		var flushErr error
		deleted, flushErr = c.store.FlushByPattern(ctx, pattern)
		return flushErr
	})
	if err != nil {
		c.errors.Add(1)
		if !apperrors.Is(err, apperrors.ErrCacheUnavailable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrCacheUnavailable, err)
		}
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Breaker: c.breaker.GetState().String(),
	}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) fingerprintPrefix() string {
	if len(c.fingerprint) > 16 {
		return c.fingerprint[:16]
	}
	return c.fingerprint
}

func (c *QueryCache) buildKey(canonical string, width int) string {
	sum := sha256.Sum256([]byte(canonical + "|" + strconv.Itoa(width)))
	return keyPrefix + c.fingerprintPrefix() + ":" + hex.EncodeToString(sum[:8])
}
