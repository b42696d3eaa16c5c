package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"watsoniot-bridge/go-backend/internal/outbox"
	"watsoniot-bridge/go-backend/internal/platform/ratelimiter"
)

// handleEvents streams node output as server-sent events. The cursor query
// parameter resumes after a known sequence number; node filters by node id.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	release, allowed := s.streams.Acquire(ratelimiter.ClientKey(r, s.extractToken(r)))
	if !allowed {
		http.Error(w, "too many stream subscriptions", http.StatusTooManyRequests)
		return
	}
	defer release()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}
	cursor, ok := parseCursor(r.URL.Query().Get("cursor"))
	if !ok {
		http.Error(w, "invalid cursor", http.StatusBadRequest)
		return
	}
	nodeID := r.URL.Query().Get("node")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	replay, ch, cancel := s.host.Outbox().Subscribe(cursor)
	defer cancel()

	for _, ev := range replay {
		if nodeID != "" && ev.NodeID != nodeID {
			continue
		}
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if nodeID != "" && ev.NodeID != nodeID {
				continue
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev outbox.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\n", ev.Seq, ev.Kind); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
