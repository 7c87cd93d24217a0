package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func search(word string, width, hits int, latency float64, cacheHit bool) SearchEvent {
	return SearchEvent{
		Type:      EventSearch,
		Query:     word,
		Canonical: word,
		Context:   width,
		TotalHits: hits,
		LatencyMs: latency,
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
	}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(search("fox", 1, 2, 1.0, false))
	agg.Track(search("fox", 3, 2, 2.0, true))
	agg.Track(search("the", 0, 2, 3.0, false))
	agg.Track(search("wolf", 2, 0, 4.0, false))
	agg.Track(LoadEvent{Type: EventLoad, Fingerprint: "abc", Occurrences: 7})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.DocumentsLoaded)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.InDelta(t, 2.5, stats.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 1.5, stats.AvgContext, 1e-9)
	assert.Equal(t, 3.0, stats.P50LatencyMs)
	assert.Equal(t, 4.0, stats.P99LatencyMs)
	assert.Equal(t, []WordCount{{"fox", 2}, {"the", 1}, {"wolf", 1}}, stats.TopWords)
	assert.Equal(t, []WordCount{{"wolf", 1}}, stats.ZeroResultWords)
	require.NotNil(t, stats.LastDocument)
	assert.Equal(t, "abc", stats.LastDocument.Fingerprint)
}

func TestAggregatorBoundsLatencySamples(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+50; i++ {
		agg.Track(search("fox", 1, 1, float64(i), false))
	}
	assert.Len(t, agg.latencies, latencyWindow)
	assert.Equal(t, int64(latencyWindow+50), agg.Stats().TotalSearches)
}

func TestAggregatorHandleDecodesByType(t *testing.T) {
	agg := NewAggregator()

	value, err := json.Marshal(search("fox", 2, 3, 0.5, false))
	require.NoError(t, err)
	require.NoError(t, agg.Handle(context.Background(), []byte("fox"), value))

	value, err = json.Marshal(LoadEvent{Type: EventLoad, Fingerprint: "f00"})
	require.NoError(t, err)
	require.NoError(t, agg.Handle(context.Background(), []byte("f00"), value))

	assert.NoError(t, agg.Handle(context.Background(), nil, []byte(`{"type":"mystery"}`)))
	assert.NoError(t, agg.Handle(context.Background(), nil, []byte(`not json`)))

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.DocumentsLoaded)
}

func TestAggregatorRestore(t *testing.T) {
	agg := NewAggregator()
	agg.Track(search("fox", 2, 1, 1.0, false))
	agg.Restore(AggregatedStats{
		TotalSearches: 9,
		CacheHits:     4,
		CacheMisses:   5,
		AvgContext:    2,
		TopWords:      []WordCount{{"fox", 5}, {"the", 4}},
		Since:         time.Now().Add(-time.Hour),
	})

	stats := agg.Stats()
	assert.Equal(t, int64(10), stats.TotalSearches)
	assert.Equal(t, int64(4), stats.CacheHits)
	assert.Equal(t, int64(6), stats.CacheMisses)
	assert.InDelta(t, 2.0, stats.AvgContext, 1e-9)
	assert.Equal(t, WordCount{"fox", 6}, stats.TopWords[0])
	assert.True(t, stats.Since.Before(time.Now().Add(-59*time.Minute)))
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(search("fox", 1, 2, 1, false))
	c.Track(LoadEvent{Type: EventLoad, Fingerprint: "abc"})
	c.Close()

	events := pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, "fox", events[0].Key)
	assert.Equal(t, "abc", events[1].Key)
	assert.Equal(t, int64(2), c.Published())
}

func TestCollectorFlushesFullBatches(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 1000)
	c.batchSize = 10
	c.Start(context.Background())

	for i := 0; i < 25; i++ {
		c.Track(search("fox", 1, 1, 1, false))
	}
	c.Close()

	assert.Len(t, pub.events(), 25)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.GreaterOrEqual(t, len(pub.batches), 3)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 2)
	c.Track(search("a", 1, 1, 1, false))
	c.Track(search("b", 1, 1, 1, false))
	c.Track(search("c", 1, 1, 1, false))
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollectorCountsFailedPublish(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 8)
	c.Start(context.Background())
	c.Track(search("fox", 1, 1, 1, false))
	c.Close()
	assert.Equal(t, int64(1), c.Dropped())
	assert.Zero(t, c.Published())
}

func TestCollectorStopsOnContextCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 8)
	ctx, cancel := context.WithCancel(context.Background())
	c.Track(search("fox", 1, 1, 1, false))
	c.Start(ctx)
	cancel()
	<-c.done
	assert.Len(t, pub.events(), 1)
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	Multi{a, b}.Track(search("fox", 1, 1, 1, false))
	assert.Equal(t, int64(1), a.Stats().TotalSearches)
	assert.Equal(t, int64(1), b.Stats().TotalSearches)
}

func TestHandlerServesStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(search("fox", 1, 2, 1, false))
	mux := http.NewServeMux()
	NewHandler(agg).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, "fox", stats.TopWords[0].Word)
}

func TestHandlerTopAndWord(t *testing.T) {
	agg := NewAggregator()
	agg.Track(search("fox", 1, 2, 1, false))
	agg.Track(search("fox", 1, 2, 1, true))
	agg.Track(search("the", 0, 2, 1, false))
	agg.Track(search("wolf", 3, 0, 1, false))
	mux := http.NewServeMux()
	NewHandler(agg).Register(mux)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/api/v1/analytics?top=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, []WordCount{{Word: "fox", Count: 2}}, stats.TopWords)
	assert.Equal(t, []WordCount{{Word: "wolf", Count: 1}}, stats.ZeroResultWords)

	for _, bad := range []string{"0", "101", "ten"} {
		rec = get("/api/v1/analytics?top=" + bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), "top must be an integer")
	}

	rec = get("/api/v1/analytics/words/FOX")
	require.Equal(t, http.StatusOK, rec.Code)
	var word WordStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&word))
	assert.Equal(t, WordStats{Word: "fox", Searches: 2}, word)

	rec = get("/api/v1/analytics/words/wolf")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&word))
	assert.Equal(t, WordStats{Word: "wolf", Searches: 1, ZeroResults: 1}, word)
}

func TestCollectorTrackAfterClose(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 8)
	c.Start(context.Background())
	c.Close()
	assert.NotPanics(t, func() { c.Track(search("fox", 1, 1, 1, false)) })
	assert.Equal(t, int64(1), c.Dropped())
}
