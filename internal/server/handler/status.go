package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/ghostyield/internal/domain"
	"github.com/alanyoungcy/ghostyield/internal/service"
)

// StatusSource supplies the live view of the running bot. Every method must
// be safe to call when the corresponding component is not running.
type StatusSource interface {
	ActiveSessions() []domain.SessionInfo
	LatestSnapshot(ctx context.Context) (domain.PriceSnapshot, error)
	Stats() service.Stats
	OracleChains() []string
	OracleLatest(ctx context.Context, chain string) (domain.OracleUpdate, error)
	OracleFailures(chain string) int
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Mode      string
	Backend   string
	StartedAt time.Time
}

// StatusHandler serves the bot status for the dashboard.
type StatusHandler struct {
	info   StatusInfo
	src    StatusSource
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo, src StatusSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{info: info, src: src, logger: logger}
}

type oracleStatus struct {
	Chain               string               `json:"chain"`
	Latest              *domain.OracleUpdate `json:"latest,omitempty"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
}

type statusResponse struct {
	Mode           string                `json:"mode"`
	Backend        string                `json:"backend"`
	UptimeSeconds  int64                 `json:"uptime_seconds"`
	ActiveSessions []domain.SessionInfo  `json:"active_sessions"`
	Snapshot       *domain.PriceSnapshot `json:"snapshot,omitempty"`
	Stats          service.Stats         `json:"stats"`
	Oracle         []oracleStatus        `json:"oracle"`
}

// GetStatus reports mode, sessions, the latest snapshot, result counters and
// per-chain oracle state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		Mode:           h.info.Mode,
		Backend:        h.info.Backend,
		UptimeSeconds:  max(int64(time.Since(h.info.StartedAt).Seconds()), 0),
		ActiveSessions: h.src.ActiveSessions(),
		Stats:          h.src.Stats(),
		Oracle:         []oracleStatus{},
	}
	if resp.ActiveSessions == nil {
		resp.ActiveSessions = []domain.SessionInfo{}
	}

	if snap, err := h.src.LatestSnapshot(ctx); err == nil {
		resp.Snapshot = &snap
	} else if !errors.Is(err, domain.ErrNotFound) {
		h.logger.WarnContext(ctx, "status: load snapshot failed", slog.String("error", err.Error()))
	}

	for _, chain := range h.src.OracleChains() {
		st := oracleStatus{Chain: chain, ConsecutiveFailures: h.src.OracleFailures(chain)}
		if u, err := h.src.OracleLatest(ctx, chain); err == nil {
			st.Latest = &u
		}
		resp.Oracle = append(resp.Oracle, st)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSnapshot returns the latest price snapshot, or 404 before the first
// poll.
// GET /api/prices/latest
func (h *StatusHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.src.LatestSnapshot(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no snapshot yet")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: load snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}
