// Package searcher answers context queries against the loaded document,
// layering validation, caching, metrics and analytics over the index.
package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/tracing"
)

// Result is the answer to one context query.
type Result struct {
	Query     string   `json:"query"`
	Canonical string   `json:"canonical"`
	Context   int      `json:"context"`
	TotalHits int      `json:"total_hits"`
	Hits      []string `json:"hits"`
	LatencyMs float64  `json:"latency_ms"`
}

// Stats describes the indexed document.
type Stats struct {
	Source         string    `json:"source"`
	Fingerprint    string    `json:"fingerprint"`
	SizeBytes      int       `json:"size_bytes"`
	Occurrences    int       `json:"occurrences"`
	Vocabulary     int       `json:"vocabulary"`
	IndexBytes     int64     `json:"index_bytes"`
	BuildMs        int64     `json:"build_ms"`
	ValidUTF8      bool      `json:"valid_utf8"`
	LoadedAt       time.Time `json:"loaded_at"`
	DefaultContext int       `json:"default_context"`
	MaxContext     int       `json:"max_context"`
}

// Cache memoises results by canonical word and width. A cache must never
// fail a query that the index could answer.
type Cache interface {
	GetOrCompute(ctx context.Context, canonical string, width int, compute func() (*Result, error)) (*Result, bool, error)
}

// Tracker receives analytics events. Track must not block.
type Tracker interface {
	Track(event any)
}

// Option configures a Searcher.
type Option func(*Searcher)

func WithCache(c Cache) Option { return func(s *Searcher) { s.cache = c } }

// WithCacheFor builds the cache from the document fingerprint, which is only
// known once the index exists.
func WithCacheFor(build func(fingerprint string) Cache) Option {
	return func(s *Searcher) { s.cache = build(s.index.Fingerprint()) }
}

func WithTracker(t Tracker) Option { return func(s *Searcher) { s.tracker = t } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Searcher) { s.metrics = m } }

// WithContextLimits sets the width used when a caller passes none and the
// largest width accepted.
func WithContextLimits(defaultWidth, maxWidth int) Option {
	return func(s *Searcher) {
		s.stats.DefaultContext = defaultWidth
		s.stats.MaxContext = maxWidth
	}
}

// Searcher is safe for concurrent use.
type Searcher struct {
	index   *index.Index
	stats   Stats
	cache   Cache
	tracker Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New wraps an already built index.
func New(ix *index.Index, opts ...Option) *Searcher {
	s := &Searcher{
		index: ix,
		stats: Stats{
			Fingerprint:    ix.Fingerprint(),
			SizeBytes:      ix.Len(),
			Occurrences:    ix.Occurrences(),
			Vocabulary:     ix.Vocabulary(),
			IndexBytes:     ix.SizeBytes(),
			ValidUTF8:      true,
			LoadedAt:       time.Now().UTC(),
			DefaultContext: 3,
			MaxContext:     100,
		},
		logger: slog.Default().With("component", "searcher"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build indexes a loaded document, publishes index gauges and emits a load
// event.
func Build(ctx context.Context, doc *loader.Document, indexOpts []index.Option, opts ...Option) *Searcher {
	_, span := tracing.StartChildSpan(ctx, "build_index")
	start := time.Now()
	ix := index.New(doc.Text, indexOpts...)
	buildTime := time.Since(start)
	span.SetAttr("occurrences", ix.Occurrences())
	span.End()

	s := New(ix, opts...)
	s.stats.Source = doc.Source
	s.stats.ValidUTF8 = doc.ValidUTF8
	s.stats.BuildMs = buildTime.Milliseconds()

	if s.metrics != nil {
		s.metrics.IndexOccurrences.Set(float64(ix.Occurrences()))
		s.metrics.IndexVocabulary.Set(float64(ix.Vocabulary()))
		s.metrics.IndexDocumentBytes.Set(float64(ix.Len()))
		s.metrics.IndexBuildSeconds.Set(buildTime.Seconds())
	}
	if s.tracker != nil {
		s.tracker.Track(analytics.LoadEvent{
			Type:        analytics.EventLoad,
			Source:      doc.Source,
			Fingerprint: ix.Fingerprint(),
			SizeBytes:   ix.Len(),
			Occurrences: ix.Occurrences(),
			Vocabulary:  ix.Vocabulary(),
			LatencyMs:   (doc.LoadTime + buildTime).Milliseconds(),
			Timestamp:   time.Now().UTC(),
		})
	}
	s.logger.Info("index built",
		"source", doc.Source,
		"fingerprint", ix.Fingerprint()[:16],
		"occurrences", ix.Occurrences(),
		"vocabulary", ix.Vocabulary(),
		"index_bytes", ix.SizeBytes(),
		"build_ms", buildTime.Milliseconds(),
	)
	return s
}

// Validate checks a context width against the configured maximum. Words
// need no validation: one with no canonical match, including "" and
// multi-word strings, simply finds nothing.
func (s *Searcher) Validate(width int) error {
	switch {
	case width < 0:
		return apperrors.InvalidInput("context width must be non-negative, got %d", width)
	case width > s.stats.MaxContext:
		return apperrors.InvalidInput("context width %d exceeds maximum %d", width, s.stats.MaxContext)
	}
	return nil
}

// Execute runs word directly against the index, bypassing the cache.
func (s *Searcher) Execute(ctx context.Context, word string, width int) (*Result, error) {
	_, span := tracing.StartChildSpan(ctx, "index_search")
	defer span.End()

	hits, err := s.index.Search(word, width)
	if err != nil {
		return nil, err
	}
	canonical := tokenizer.Canonical(word)
	span.SetAttr("word", canonical)
	span.SetAttr("hits", len(hits))
	return &Result{
		Query:     word,
		Canonical: canonical,
		Context:   width,
		TotalHits: len(hits),
		Hits:      hits,
	}, nil
}

// Search validates the query, consults the cache when configured, and
// records metrics and analytics. The bool reports a cache hit.
func (s *Searcher) Search(ctx context.Context, word string, width int) (*Result, bool, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "search")
	defer span.End()
	log := logger.FromContext(ctx)

	if err := s.Validate(width); err != nil {
		s.observe(metrics.ResultInvalid, "", 0, width, 0)
		return nil, false, err
	}

	var (
		result   *Result
		cacheHit bool
		err      error
	)
	cacheStatus := metrics.CacheStatusOff
	if s.cache != nil {
		result, cacheHit, err = s.cache.GetOrCompute(ctx, tokenizer.Canonical(word), width, func() (*Result, error) {
			return s.Execute(ctx, word, width)
		})
		cacheStatus = metrics.CacheStatusMiss
		if cacheHit {
			cacheStatus = metrics.CacheStatusHit
		}
	} else {
		result, err = s.Execute(ctx, word, width)
	}
	if err != nil {
		resultType := metrics.ResultError
		if apperrors.Is(err, apperrors.ErrInvalidInput) {
			resultType = metrics.ResultInvalid
		}
		s.observe(resultType, cacheStatus, time.Since(start), width, 0)
		log.Error("search failed", "query", word, "context", width, "error", err)
		return nil, false, err
	}

	// Cached results are shared; hand the caller its own header.
	out := *result
	out.Query = word
	elapsed := time.Since(start)
	out.LatencyMs = float64(elapsed.Microseconds()) / 1000

	resultType := metrics.ResultHit
	if out.TotalHits == 0 {
		resultType = metrics.ResultZero
	}
	s.observe(resultType, cacheStatus, elapsed, width, out.TotalHits)
	span.SetAttr("cache_hit", cacheHit)

	if s.tracker != nil {
		s.tracker.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     word,
			Canonical: out.Canonical,
			Context:   width,
			TotalHits: out.TotalHits,
			LatencyMs: out.LatencyMs,
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}
	log.Debug("search completed",
		"query", word,
		"context", width,
		"total_hits", out.TotalHits,
		"cache_hit", cacheHit,
		"latency_ms", out.LatencyMs,
	)
	return &out, cacheHit, nil
}

func (s *Searcher) observe(resultType, cacheStatus string, elapsed time.Duration, width, hits int) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if cacheStatus == "" {
		return
	}
	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	s.metrics.SearchHitsCount.Observe(float64(hits))
	s.metrics.ContextWidth.Observe(float64(width))
}

// Stats returns a snapshot of the document statistics.
func (s *Searcher) Stats() Stats {
	return s.stats
}

// DefaultContext is the width used when a caller gives none.
func (s *Searcher) DefaultContext() int {
	return s.stats.DefaultContext
}

// Fingerprint identifies the indexed document.
func (s *Searcher) Fingerprint() string {
	return s.stats.Fingerprint
}

// Count returns the number of occurrences of word.
func (s *Searcher) Count(word string) int {
	return s.index.Count(word)
}
