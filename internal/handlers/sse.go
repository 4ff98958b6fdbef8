package handlers

import (
	"fmt"
	"net/http"
	"time"
)

// HeartbeatInterval is how often the SSE stream writes a comment line to
// keep the connection warm and prove liveness to the hub.
var HeartbeatInterval = 15 * time.Second

// SSEHandler is the push channel: it registers a session in the hub and
// streams its events as text/event-stream until the client goes away,
// the session channel closes (heartbeat reaped) or a write fails.
func (h *Handler) SSEHandler(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := RecipientFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	session, err := h.Hub.Register(recipientID)
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.Hub.Unregister(session.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	fmt.Fprintf(w, ": connected %s\n\n", session.ID)
	flusher.Flush()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				// Reaped by the hub.
				return
			}
			data, err := ev.Encode()
			if err != nil {
				h.Log.Warn().Err(err).Msg("skipping unencodable event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
			h.Hub.Heartbeat(session.ID)
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
			h.Hub.Heartbeat(session.ID)
		case <-r.Context().Done():
			return
		}
	}
}
