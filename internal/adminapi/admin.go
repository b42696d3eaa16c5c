package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"watsoniot-bridge/go-backend/internal/apikeys"
	"watsoniot-bridge/go-backend/internal/operations"
	"watsoniot-bridge/go-backend/internal/session"
)

type newAPIKeyRequest struct {
	Credentials *session.APIKey `json:"credentials"`
	ID          string          `json:"id"`
}

func (s *Server) familySession(w http.ResponseWriter, r *http.Request) (operations.Family, *session.Manager, bool) {
	family, ok := operations.ParseFamily(r.PathValue("family"))
	if !ok {
		http.Error(w, "unknown family", http.StatusNotFound)
		return "", nil, false
	}
	m, ok := s.host.Session(family)
	if !ok {
		http.Error(w, "unknown family", http.StatusNotFound)
		return "", nil, false
	}
	return family, m, true
}

// handleOrgID reports the org of the family session as a JSON string, or the
// bare word undefined when no session exists.
func (s *Server) handleOrgID(w http.ResponseWriter, r *http.Request) {
	_, m, ok := s.familySession(w, r)
	if !ok {
		return
	}
	org, ok := m.OrgID()
	if !ok {
		writeText(w, http.StatusOK, "undefined")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// handleBluemixTypes reconnects the family from the service binding. A
// missing binding leaves the session as it is.
func (s *Server) handleBluemixTypes(w http.ResponseWriter, r *http.Request) {
	family, _, ok := s.familySession(w, r)
	if !ok {
		return
	}
	err := s.host.ConnectFromEnvironment(family)
	if err != nil && !errors.Is(err, session.ErrNoServiceBinding) {
		http.Error(w, "connect failed", http.StatusBadGateway)
		return
	}
	writeText(w, http.StatusOK, "success")
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	_, m, ok := s.familySession(w, r)
	if !ok {
		return
	}
	client, release, err := m.Acquire()
	if err != nil {
		writeText(w, http.StatusUnauthorized, "Uninitialized Error")
		return
	}
	defer release()
	types, err := client.GetAllDeviceTypes(r.Context())
	if err != nil {
		s.logger.Warn("device type listing failed", "family", m.Family(), "error", err.Error())
		writeText(w, http.StatusForbidden, "No device types")
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// handleNewAPIKey connects the family with inline credentials, or with the
// stored credential named by id.
func (s *Server) handleNewAPIKey(w http.ResponseWriter, r *http.Request) {
	family, _, ok := s.familySession(w, r)
	if !ok {
		return
	}
	var req newAPIKeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	if c := req.Credentials; c != nil && c.User != "" && c.Password != "" {
		err = s.host.ConnectWithAPIKey(family, *c)
	} else if id := strings.TrimSpace(req.ID); id != "" {
		err = s.host.ConnectWithCredential(family, id)
	} else {
		http.Error(w, "credentials or id is required", http.StatusBadRequest)
		return
	}

	var parseErr *session.OrgParseError
	switch {
	case err == nil:
		writeText(w, http.StatusCreated, "success")
	case errors.Is(err, apikeys.ErrNotFound):
		http.Error(w, "credential not found", http.StatusNotFound)
	case errors.As(err, &parseErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "connect failed", http.StatusBadGateway)
	}
}
