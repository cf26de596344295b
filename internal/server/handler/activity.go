package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// ActivityHandler serves the recent-activity feed.
type ActivityHandler struct {
	store  domain.ActivityStore
	logger *slog.Logger
}

// NewActivityHandler creates an ActivityHandler with the given store and logger.
func NewActivityHandler(store domain.ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		store:  store,
		logger: logger,
	}
}

// activityResponse renders one activity row.
type activityResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Timestamp   int64  `json:"timestamp"`
	Account     string `json:"account"`
	ConditionID string `json:"condition_id,omitempty"`
	Amount      string `json:"amount"`
}

// listActivityResponse wraps the activity list response.
type listActivityResponse struct {
	Activity []activityResponse `json:"activity"`
}

// ListRecent returns the most recent activity rows, newest first.
// GET /api/activity?limit=50
func (h *ActivityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	entries, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list activity failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}

	out := make([]activityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityResponse{
			ID:          e.ID,
			Kind:        e.Kind,
			Timestamp:   e.Timestamp,
			Account:     e.Account,
			ConditionID: e.ConditionID,
			Amount:      e.Amount.String(),
		})
	}
	writeJSON(w, http.StatusOK, listActivityResponse{Activity: out})
}
