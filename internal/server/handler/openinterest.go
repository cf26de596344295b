package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// OpenInterestHandler serves open-interest read endpoints. Reads prefer the
// cache when one is configured and fall back to the store.
type OpenInterestHandler struct {
	store  domain.OpenInterestStore
	cache  domain.OpenInterestCache // optional
	logger *slog.Logger
}

// NewOpenInterestHandler creates an OpenInterestHandler. cache may be nil.
func NewOpenInterestHandler(store domain.OpenInterestStore, cache domain.OpenInterestCache, logger *slog.Logger) *OpenInterestHandler {
	return &OpenInterestHandler{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// openInterestResponse renders an open-interest row. Amounts are emitted as
// decimal strings since they exceed float64 precision.
type openInterestResponse struct {
	ConditionID string `json:"condition_id,omitempty"`
	Amount      string `json:"amount"`
}

// GetGlobal returns the global collateral total locked across all conditions.
// GET /api/openinterest
func (h *OpenInterestHandler) GetGlobal(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if oi, err := h.cache.GetGlobal(r.Context()); err == nil {
			writeJSON(w, http.StatusOK, openInterestResponse{Amount: oi.Amount.String()})
			return
		}
	}

	oi, err := h.store.GetOrCreateGlobal(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get global open interest failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read open interest")
		return
	}
	writeJSON(w, http.StatusOK, openInterestResponse{Amount: oi.Amount.String()})
}

// GetMarket returns the open interest for one condition.
// GET /api/openinterest/{conditionId}
func (h *OpenInterestHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	conditionID := pathParam(r, "conditionId")
	if conditionID == "" {
		writeError(w, http.StatusBadRequest, "conditionId path parameter required")
		return
	}

	if h.cache != nil {
		if oi, err := h.cache.GetMarket(r.Context(), conditionID); err == nil {
			writeJSON(w, http.StatusOK, openInterestResponse{
				ConditionID: oi.ConditionID,
				Amount:      oi.Amount.String(),
			})
			return
		}
	}

	oi, err := h.store.GetOrCreateMarket(r.Context(), conditionID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get market open interest failed",
			slog.String("condition_id", conditionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read open interest")
		return
	}
	writeJSON(w, http.StatusOK, openInterestResponse{
		ConditionID: oi.ConditionID,
		Amount:      oi.Amount.String(),
	})
}

// listMarketsResponse wraps the market list response.
type listMarketsResponse struct {
	Markets []openInterestResponse `json:"markets"`
}

// ListMarkets returns the open interest of every tracked condition.
// GET /api/openinterest/markets
func (h *OpenInterestHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.store.ListMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	out := make([]openInterestResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, openInterestResponse{
			ConditionID: m.ConditionID,
			Amount:      m.Amount.String(),
		})
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: out})
}
