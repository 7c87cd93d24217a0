package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/loader"
	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foxText = "The quick brown fox. The fox ran."

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*Result
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*Result)}
}

func (c *mapCache) GetOrCompute(ctx context.Context, canonical string, width int, compute func() (*Result, error)) (*Result, bool, error) {
	key := fmt.Sprintf("%s|%d", canonical, width)
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.entries[key]; ok {
		return r, true, nil
	}
	r, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.entries[key] = r
	return r, false, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []any
}

func (t *recordingTracker) Track(event any) {
	t.mu.Lock()
	t.events = append(t.events, event)
	t.mu.Unlock()
}

func TestExecute(t *testing.T) {
	s := New(index.New(foxText))

	res, err := s.Execute(context.Background(), "FOX", 1)
	require.NoError(t, err)
	assert.Equal(t, "FOX", res.Query)
	assert.Equal(t, "fox", res.Canonical)
	assert.Equal(t, 2, res.TotalHits)
	assert.Equal(t, []string{"brown fox. The", "The fox ran"}, res.Hits)

	res, err = s.Execute(context.Background(), "wolf", 3)
	require.NoError(t, err)
	assert.Zero(t, res.TotalHits)
	assert.NotNil(t, res.Hits)
}

func TestValidate(t *testing.T) {
	s := New(index.New(foxText), WithContextLimits(3, 10))

	tests := []struct {
		name  string
		width int
		ok    bool
	}{
		{"default", 3, true},
		{"zero", 0, true},
		{"max", 10, true},
		{"negative", -1, false},
		{"too wide", 11, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.width)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestSearchUnmatchableWordsFindNothing(t *testing.T) {
	s := New(index.New(foxText), WithCache(newMapCache()))

	for _, word := range []string{"", "brown fox", "fox\t", "  ", "fox."} {
		t.Run(fmt.Sprintf("%q", word), func(t *testing.T) {
			res, _, err := s.Search(context.Background(), word, 1)
			require.NoError(t, err)
			assert.Equal(t, word, res.Query)
			assert.Zero(t, res.TotalHits)
			assert.Empty(t, res.Hits)
		})
	}
}

func TestSearchRecordsMetricsAndAnalytics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	tracker := &recordingTracker{}
	s := New(index.New(foxText), WithMetrics(m), WithTracker(tracker))

	res, cacheHit, err := s.Search(context.Background(), "The", 0)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, []string{"The", "The"}, res.Hits)

	_, _, err = s.Search(context.Background(), "wolf", 2)
	require.NoError(t, err)

	_, _, err = s.Search(context.Background(), "fox", -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(metrics.ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(metrics.ResultZero)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(metrics.ResultInvalid)))

	require.Len(t, tracker.events, 2)
	ev, ok := tracker.events[0].(analytics.SearchEvent)
	require.True(t, ok)
	assert.Equal(t, analytics.EventSearch, ev.Type)
	assert.Equal(t, "the", ev.Canonical)
	assert.Equal(t, 2, ev.TotalHits)
	assert.False(t, ev.CacheHit)
}

func TestSearchUsesCacheByCanonicalWord(t *testing.T) {
	s := New(index.New(foxText), WithCache(newMapCache()))

	first, hit, err := s.Search(context.Background(), "fox", 1)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := s.Search(context.Background(), "FOX", 1)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Hits, second.Hits)
	assert.Equal(t, "FOX", second.Query)
	assert.Equal(t, "fox", first.Query)
}

type failingCache struct{}

func (failingCache) GetOrCompute(ctx context.Context, canonical string, width int, compute func() (*Result, error)) (*Result, bool, error) {
	return nil, false, errors.New("compute exploded")
}

func TestSearchReportsComputeErrors(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := New(index.New(foxText), WithCache(failingCache{}), WithMetrics(m))

	_, _, err := s.Search(context.Background(), "fox", 1)
	assert.EqualError(t, err, "compute exploded")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(metrics.ResultError)))
}

func TestBuild(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	tracker := &recordingTracker{}
	doc := &loader.Document{Text: foxText, Source: "fox.txt", ValidUTF8: true, LoadTime: time.Millisecond}

	s := Build(context.Background(), doc, []index.Option{index.WithOwnedResults()},
		WithMetrics(m), WithTracker(tracker), WithContextLimits(2, 50))

	stats := s.Stats()
	assert.Equal(t, "fox.txt", stats.Source)
	assert.Equal(t, 7, stats.Occurrences)
	assert.Equal(t, 5, stats.Vocabulary)
	assert.Equal(t, len(foxText), stats.SizeBytes)
	assert.Len(t, stats.Fingerprint, 64)
	assert.Equal(t, 2, s.DefaultContext())
	assert.Equal(t, 50, stats.MaxContext)
	assert.Equal(t, 2, s.Count("the"))

	assert.Equal(t, 7.0, testutil.ToFloat64(m.IndexOccurrences))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.IndexVocabulary))

	require.Len(t, tracker.events, 1)
	load, ok := tracker.events[0].(analytics.LoadEvent)
	require.True(t, ok)
	assert.Equal(t, stats.Fingerprint, load.Fingerprint)
	assert.Equal(t, 7, load.Occurrences)
}
