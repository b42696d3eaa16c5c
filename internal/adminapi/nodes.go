package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"watsoniot-bridge/go-backend/internal/dispatch"
	"watsoniot-bridge/go-backend/internal/nodes"
	"watsoniot-bridge/go-backend/internal/operations"
	"watsoniot-bridge/go-backend/internal/session"
)

type nodeView struct {
	dispatch.NodeConfig
	Status any `json:"status"`
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	configured := s.host.Nodes()
	views := make([]nodeView, 0, len(configured))
	for _, cfg := range configured {
		// apiKey is a credential id, never the key itself
		v := nodeView{NodeConfig: cfg}
		if st, ok := s.host.Status(cfg.ID); ok {
			v.Status = st
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleInput delivers one inbound message to a node. The call itself runs
// after the response; its result shows up on the node output.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var msg dispatch.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}
	id, err := s.host.Deliver(r.Context(), r.PathValue("id"), msg)
	if err != nil {
		code := deliveryStatus(err)
		if code == http.StatusNotFound {
			http.Error(w, "unknown node", code)
			return
		}
		writeJSON(w, code, map[string]string{"_msgid": id, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"_msgid": id})
}

func deliveryStatus(err error) int {
	var (
		vErr *operations.ValidationError
		uErr *operations.UnknownOperationError
	)
	switch {
	case errors.Is(err, nodes.ErrUnknownNode):
		return http.StatusNotFound
	case errors.As(err, &vErr), errors.As(err, &uErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrUninitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.host.Status(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.host.Status(id); !ok {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}
	since, ok := parseCursor(r.URL.Query().Get("since"))
	if !ok {
		http.Error(w, "invalid since", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.host.Outbox().Since(id, since))
}

func parseCursor(raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
