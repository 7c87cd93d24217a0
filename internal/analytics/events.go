package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventLoad   EventType = "document_load"
)

// SearchEvent describes one answered context query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Canonical string    `json:"canonical"`
	Context   int       `json:"context"`
	TotalHits int       `json:"total_hits"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// LoadEvent is emitted once per process when the document has been indexed.
type LoadEvent struct {
	Type        EventType `json:"type"`
	Source      string    `json:"source"`
	Fingerprint string    `json:"fingerprint"`
	SizeBytes   int       `json:"size_bytes"`
	Occurrences int       `json:"occurrences"`
	Vocabulary  int       `json:"vocabulary"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// key picks the partition key: searches hash by word so per-word counts
// stay on one partition.
func key(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return e.Canonical
	case LoadEvent:
		return e.Fingerprint
	default:
		return "analytics"
	}
}
