package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// PositionHandler serves per-holder cost-basis position endpoints.
type PositionHandler struct {
	store  domain.UserPositionStore
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given store and logger.
func NewPositionHandler(store domain.UserPositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		store:  store,
		logger: logger,
	}
}

// positionResponse renders one holding. Amounts and prices are decimal
// strings in collateral base units.
type positionResponse struct {
	PositionID string `json:"position_id"`
	Amount     string `json:"amount"`
	AvgPrice   string `json:"avg_price"`
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Holder    string             `json:"holder"`
	Positions []positionResponse `json:"positions"`
}

// ListPositions returns all tracked positions for a given holder.
// GET /api/positions?holder=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	holder := strings.ToLower(r.URL.Query().Get("holder"))
	if holder == "" {
		writeError(w, http.StatusBadRequest, "holder query parameter required")
		return
	}

	positions, err := h.store.ListByHolder(r.Context(), holder)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("holder", holder),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionResponse{
			PositionID: p.PositionID,
			Amount:     p.Amount.String(),
			AvgPrice:   p.AvgPrice.String(),
		})
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Holder: holder, Positions: out})
}
