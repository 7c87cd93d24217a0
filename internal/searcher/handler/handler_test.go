package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foxText = "The quick brown fox. The fox ran."

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = make(map[string][]byte)
	return n, nil
}

func newMux(t *testing.T, withCache bool) *http.ServeMux {
	t.Helper()
	var qc *cache.QueryCache
	opts := []searcher.Option{searcher.WithContextLimits(1, 10)}
	ix := index.New(foxText)
	if withCache {
		qc = cache.New(&memStore{data: make(map[string][]byte)}, time.Minute, ix.Fingerprint(), nil, nil)
		opts = append(opts, searcher.WithCache(qc))
	}
	mux := http.NewServeMux()
	New(searcher.New(ix, opts...), qc).Register(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestSearch(t *testing.T) {
	mux := newMux(t, false)

	rec, body := do(t, mux, http.MethodGet, "/api/v1/search?q=fox&context=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fox", body["query"])
	assert.Equal(t, float64(2), body["total_hits"])
	assert.Equal(t, []any{"brown fox. The", "The fox ran"}, body["hits"])
	assert.Equal(t, false, body["cache_hit"])

	rec, body = do(t, mux, http.MethodGet, "/api/v1/search?q=THE&context=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"The", "The"}, body["hits"])
	assert.Equal(t, "the", body["canonical"])
}

func TestSearchDefaultsContext(t *testing.T) {
	rec, body := do(t, newMux(t, false), http.MethodGet, "/api/v1/search?q=ran")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["context"])
	assert.Equal(t, []any{"fox ran."}, body["hits"])
}

func TestSearchNoMatch(t *testing.T) {
	mux := newMux(t, false)
	for _, target := range []string{
		"/api/v1/search?q=wolf&context=2",
		"/api/v1/search?q=brown+fox&context=1",
		"/api/v1/search?q=fox.",
	} {
		rec, body := do(t, mux, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, float64(0), body["total_hits"], target)
		assert.Equal(t, []any{}, body["hits"], target)
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	mux := newMux(t, false)
	tests := map[string]string{
		"missing q":   "/api/v1/search?context=1",
		"non-integer": "/api/v1/search?q=fox&context=two",
		"negative":    "/api/v1/search?q=fox&context=-1",
		"above max":   "/api/v1/search?q=fox&context=11",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			rec, body := do(t, mux, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchCacheHit(t *testing.T) {
	mux := newMux(t, true)

	_, body := do(t, mux, http.MethodGet, "/api/v1/search?q=fox&context=1")
	assert.Equal(t, false, body["cache_hit"])
	_, body = do(t, mux, http.MethodGet, "/api/v1/search?q=Fox&context=1")
	assert.Equal(t, true, body["cache_hit"])
	assert.Equal(t, "Fox", body["query"])

	rec, body := do(t, mux, http.MethodGet, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["hits"])
	assert.Equal(t, float64(1), body["misses"])

	rec, body = do(t, mux, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["keys_deleted"])
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	mux := newMux(t, false)

	rec, body := do(t, mux, http.MethodGet, "/api/v1/cache/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", body["status"])

	rec, _ = do(t, mux, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	rec, body := do(t, newMux(t, false), http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["occurrences"])
	assert.Equal(t, float64(5), body["vocabulary"])
	assert.Equal(t, float64(len(foxText)), body["size_bytes"])
	assert.Len(t, body["fingerprint"], 64)
}

func TestSearchMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(t, false).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/search?q=fox", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
