package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/service"
)

// ResultSource lists arbitrage results.
type ResultSource interface {
	Recent(ctx context.Context, limit int) []domain.ArbitrageResult
	Stats() service.Stats
}

// ArbHandler serves arbitrage endpoints.
type ArbHandler struct {
	results ResultSource
	logger  *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(results ResultSource, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{results: results, logger: logger}
}

type listResultsResponse struct {
	Results []domain.ArbitrageResult `json:"results"`
}

// ListRecent returns the newest results first.
// GET /api/arbitrage/recent?limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	out := h.results.Recent(r.Context(), queryLimit(r, 20, 200))
	if out == nil {
		out = []domain.ArbitrageResult{}
	}
	writeJSON(w, http.StatusOK, listResultsResponse{Results: out})
}

// GetStats returns the result counters of this process.
// GET /api/arbitrage/stats
func (h *ArbHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.results.Stats())
}
