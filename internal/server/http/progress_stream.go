package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scholium/harvest-service/internal/pipeline"
)

// sseMaxDuration is the maximum time an SSE stream may remain open.
const sseMaxDuration = 4 * time.Hour

// streamHarvest handles POST /v1/harvests/stream (SSE).
// It starts a harvest run and streams its progress events as they happen,
// ending with the final result event. Closing the connection cancels the run.
func (s *Server) streamHarvest(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeHarvestConfig(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithTimeout(r.Context(), sseMaxDuration)
	defer cancel()

	events := s.orchestrator.Run(ctx, cfg)
	for event := range events {
		sendSSEEvent(w, flusher, event)
	}
}

// sendSSEEvent writes a single SSE event to the response writer. The SSE
// event name is the pipeline phase.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event pipeline.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Phase, data)
	flusher.Flush()
}
