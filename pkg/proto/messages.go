// Package proto defines the messages exchanged over the internal RPC layer
// (see pkg/rpc). They are plain structs with JSON tags.
package proto

const (
	MethodSearch = "ContextSearch.Search"
	MethodStats  = "ContextSearch.Stats"
	MethodHealth = "ContextSearch.Health"
)

// SearchRequest is the input to ContextSearch.Search. A nil Context uses the
// server's default width.
type SearchRequest struct {
	Word    string `json:"word"`
	Context *int   `json:"context,omitempty"`
}

// SearchResponse is the output of ContextSearch.Search.
type SearchResponse struct {
	Word      string   `json:"word"`
	Canonical string   `json:"canonical"`
	Context   int      `json:"context"`
	TotalHits int      `json:"total_hits"`
	Hits      []string `json:"hits"`
	CacheHit  bool     `json:"cache_hit"`
	LatencyMs float64  `json:"latency_ms"`
}

// StatsRequest is the (empty) input to ContextSearch.Stats.
type StatsRequest struct{}

// StatsResponse describes the indexed document.
type StatsResponse struct {
	Source      string `json:"source"`
	Fingerprint string `json:"fingerprint"`
	SizeBytes   int    `json:"size_bytes"`
	Occurrences int    `json:"occurrences"`
	Vocabulary  int    `json:"vocabulary"`
	MaxContext  int    `json:"max_context"`
}

// HealthCheckResponse reports SERVING or NOT_SERVING.
type HealthCheckResponse struct {
	Status string `json:"status"`
}
