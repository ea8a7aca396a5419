package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cartsync/internal/events"
)

// eventBuffer is how many events a slow SSE client may lag before it misses some.
const eventBuffer = 16

// handleEvents streams cart/updated and cart/init as Server-Sent Events until
// the client disconnects.
// GET /events
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan events.Event, eventBuffer)
	defer h.events.SubscribeChan(events.CartUpdated, ch)()
	defer h.events.SubscribeChan(events.CartInit, ch)()

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			data := []byte("{}")
			if c := e.Cart(); c != nil {
				var err error
				if data, err = json.Marshal(c); err != nil {
					h.logger.ErrorContext(ctx, "failed to encode event", slog.String("error", err.Error()))
					continue
				}
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
