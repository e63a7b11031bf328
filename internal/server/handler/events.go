package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

// StreamReader reads the durable event history.
type StreamReader interface {
	StreamRevRange(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// EventHandler serves the durable event streams.
type EventHandler struct {
	reader  StreamReader
	streams []string
	logger  *slog.Logger
}

// NewEventHandler creates an EventHandler exposing only the named streams.
func NewEventHandler(reader StreamReader, streams []string, logger *slog.Logger) *EventHandler {
	return &EventHandler{reader: reader, streams: streams, logger: logger}
}

type eventEntry struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ListEvents returns the newest entries of one stream.
// GET /api/events/{stream}?limit=50
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	stream := r.PathValue("stream")
	if !slices.Contains(h.streams, stream) {
		writeError(w, http.StatusNotFound, "unknown stream")
		return
	}

	msgs, err := h.reader.StreamRevRange(r.Context(), stream, queryLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read stream failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	out := make([]eventEntry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, eventEntry{ID: m.ID, Payload: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream": stream, "events": out})
}
