package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/logger"
)

// SearchService is what the handler needs from the searcher.
type SearchService interface {
	Search(ctx context.Context, word string, width int) (*searcher.Result, bool, error)
	Stats() searcher.Stats
	DefaultContext() int
}

// SearchResponse is a Result plus whether it came from the cache.
type SearchResponse struct {
	*searcher.Result
	CacheHit bool `json:"cache_hit"`
}

type Handler struct {
	service SearchService
	cache   *cache.QueryCache
	logger  *slog.Logger
}

// New creates a handler. queryCache may be nil when caching is disabled.
func New(service SearchService, queryCache *cache.QueryCache) *Handler {
	return &Handler{
		service: service,
		cache:   queryCache,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the search API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=<word>&context=<n>.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	width := h.service.DefaultContext()
	if raw := r.URL.Query().Get("context"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "context must be an integer")
			return
		}
		width = parsed
	}

	result, cacheHit, err := h.service.Search(ctx, query, width)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", "query", query, "context", width, "error", err)
			h.writeError(w, status, "search failed")
			return
		}
		h.writeError(w, status, errorMessage(err))
		return
	}

	log.Info("search completed",
		"query", query,
		"context", width,
		"total_hits", result.TotalHits,
		"cache_hit", cacheHit,
		"latency_ms", result.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, SearchResponse{Result: result, CacheHit: cacheHit})
}

// Stats serves GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
