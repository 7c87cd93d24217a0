package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/kafka"
)

// latencyWindow bounds the samples kept for percentile estimates.
const latencyWindow = 10000

type AggregatedStats struct {
	TotalSearches    int64       `json:"total_searches"`
	DocumentsLoaded  int64       `json:"documents_loaded"`
	CacheHits        int64       `json:"cache_hits"`
	CacheMisses      int64       `json:"cache_misses"`
	ZeroResultCount  int64       `json:"zero_result_count"`
	AvgLatencyMs     float64     `json:"avg_latency_ms"`
	P50LatencyMs     float64     `json:"p50_latency_ms"`
	P95LatencyMs     float64     `json:"p95_latency_ms"`
	P99LatencyMs     float64     `json:"p99_latency_ms"`
	AvgContext       float64     `json:"avg_context"`
	TopWords         []WordCount `json:"top_words"`
	ZeroResultWords  []WordCount `json:"zero_result_words"`
	QueriesPerMinute float64     `json:"queries_per_minute"`
	LastDocument     *LoadEvent  `json:"last_document,omitempty"`
	Since            time.Time   `json:"since"`
}

type WordCount struct {
	Word  string `json:"word"`
	Count int64  `json:"count"`
}

// Aggregator folds search and load events into running statistics. It is
// fed either in-process through Track or from Kafka through Handle.
type Aggregator struct {
	mu              sync.RWMutex
	totalSearches   int64
	documentsLoaded int64
	cacheHits       int64
	cacheMisses     int64
	zeroResults     int64
	contextSum      int64
	latencies       []float64
	latencyNext     int
	latencySum      float64
	latencyCount    int64
	wordCounts      map[string]int64
	zeroResultWords map[string]int64
	lastDocument    *LoadEvent
	startTime       time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:       make([]float64, 0, latencyWindow),
		wordCounts:      make(map[string]int64),
		zeroResultWords: make(map[string]int64),
		startTime:       time.Now().UTC(),
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records an event directly.
func (a *Aggregator) Track(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case LoadEvent:
		a.recordLoad(e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
	}
}

// Handle decodes a Kafka message and records it. Undecodable messages are
// logged and skipped so they do not block the partition.
func (a *Aggregator) Handle(ctx context.Context, key, value []byte) error {
	event, err := decodeEvent(value)
	if err != nil {
		a.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
		return nil
	}
	a.Track(event)
	return nil
}

func decodeEvent(value []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return nil, fmt.Errorf("reading event type: %w", err)
	}
	switch head.Type {
	case EventSearch:
		return kafka.DecodeJSON[SearchEvent](value)
	case EventLoad:
		return kafka.DecodeJSON[LoadEvent](value)
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.contextSum += int64(event.Context)
	a.wordCounts[event.Canonical]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultWords[event.Canonical]++
	}

	a.latencySum += event.LatencyMs
	a.latencyCount++
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}
}

func (a *Aggregator) recordLoad(event LoadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.documentsLoaded++
	a.lastDocument = &event
}

// DefaultTopWords is how many words Stats ranks.
const DefaultTopWords = 10

// WordStats is the search history of one canonical word.
type WordStats struct {
	Word        string `json:"word"`
	Searches    int64  `json:"searches"`
	ZeroResults int64  `json:"zero_results"`
}

// Word reports how often canonical has been searched for.
func (a *Aggregator) Word(canonical string) WordStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return WordStats{
		Word:        canonical,
		Searches:    a.wordCounts[canonical],
		ZeroResults: a.zeroResultWords[canonical],
	}
}

// Stats returns the running statistics with the top DefaultTopWords words.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopWords)
}

// StatsTop is Stats with n ranked words per list.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		DocumentsLoaded: a.documentsLoaded,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		TopWords:        topN(a.wordCounts, n),
		ZeroResultWords: topN(a.zeroResultWords, n),
		LastDocument:    a.lastDocument,
		Since:           a.startTime,
	}
	if a.latencyCount > 0 {
		stats.AvgLatencyMs = a.latencySum / float64(a.latencyCount)
	}
	if a.totalSearches > 0 {
		stats.AvgContext = float64(a.contextSum) / float64(a.totalSearches)
	}
	if len(a.latencies) > 0 {
		sorted := append([]float64(nil), a.latencies...)
		sort.Float64s(sorted)
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Only the words present in the snapshot's top lists come back.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches += s.TotalSearches
	a.documentsLoaded += s.DocumentsLoaded
	a.cacheHits += s.CacheHits
	a.cacheMisses += s.CacheMisses
	a.zeroResults += s.ZeroResultCount
	a.contextSum += int64(s.AvgContext * float64(s.TotalSearches))
	a.latencySum += s.AvgLatencyMs * float64(s.TotalSearches)
	a.latencyCount += s.TotalSearches
	for _, wc := range s.TopWords {
		a.wordCounts[wc.Word] += wc.Count
	}
	for _, wc := range s.ZeroResultWords {
		a.zeroResultWords[wc.Word] += wc.Count
	}
	if a.lastDocument == nil {
		a.lastDocument = s.LastDocument
	}
	if !s.Since.IsZero() && s.Since.Before(a.startTime) {
		a.startTime = s.Since
	}
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []WordCount {
	result := make([]WordCount, 0, len(counts))
	for word, count := range counts {
		result = append(result, WordCount{Word: word, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Word < result[j].Word
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Multi fans one event out to several trackers.
type Multi []interface{ Track(event any) }

func (m Multi) Track(event any) {
	for _, t := range m {
		t.Track(event)
	}
}
