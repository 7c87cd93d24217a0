package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
)

const maxTopWords = 100

// Handler serves aggregated search analytics.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Register mounts the analytics routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/words/{word}", h.Word)
}

// Stats serves GET /api/v1/analytics[?top=n].
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := DefaultTopWords
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopWords {
			h.writeError(w, apperrors.InvalidInput("top must be an integer between 1 and %d, got %q", maxTopWords, raw))
			return
		}
		top = n
	}
	h.writeJSON(w, h.aggregator.StatsTop(top))
}

// Word serves GET /api/v1/analytics/words/{word}. The word is folded the
// same way queries are, so "Fox" and "fox" share a history.
func (h *Handler) Word(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.aggregator.Word(tokenizer.Canonical(r.PathValue("word"))))
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	message := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		message = appErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatusCode(err))
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
