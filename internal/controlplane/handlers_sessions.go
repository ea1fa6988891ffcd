package controlplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openctrol/agent/internal/broker"
)

type startSessionRequest struct {
	CallerID   string `json:"callerId"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type startSessionResponse struct {
	SessionID string    `json:"sessionId"`
	StreamURL string    `json:"streamUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CallerID == "" {
		writeError(w, http.StatusBadRequest, "callerId is required")
		return
	}

	if !s.broker.IsCallerAllowed(req.CallerID) {
		writeError(w, http.StatusUnauthorized, "caller not allowed")
		return
	}
	if err := s.broker.AllowAttempt(req.CallerID); err != nil {
		writeError(w, http.StatusUnauthorized, "rate limited")
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if req.TTLSeconds == 0 {
		ttl = s.cfg.DefaultSessionTTL
	}
	session, err := s.broker.StartSession(req.CallerID, ttl)
	if err != nil {
		if errors.Is(err, broker.ErrSessionLimit) {
			writeError(w, http.StatusServiceUnavailable, "session limit reached")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}

	tok, err := s.broker.IssueToken(req.CallerID, ttl)
	if err != nil {
		s.broker.EndSession(session.ID)
		writeError(w, http.StatusServiceUnavailable, "broker unavailable")
		return
	}

	writeJSON(w, http.StatusOK, startSessionResponse{
		SessionID: session.ID,
		StreamURL: fmt.Sprintf("/ws/desktop?sess=%s&token=%s", session.ID, tok.Value),
		ExpiresAt: session.ExpiresAt,
	})
}

const (
	endSessionPrefix = "/api/v1/sessions/desktop/"
	endSessionSuffix = "/end"
)

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, ok := sessionPathID(r.URL.Path, endSessionPrefix, endSessionSuffix)
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	if !s.broker.EndSession(id) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
