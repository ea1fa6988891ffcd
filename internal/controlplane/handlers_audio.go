package controlplane

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleAudioState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.audio == nil {
		writeError(w, http.StatusServiceUnavailable, "audio collaborator unavailable")
		return
	}
	state, err := s.audio.State()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audio state unavailable")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type audioDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

func (s *Server) handleAudioDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.audio == nil {
		writeError(w, http.StatusServiceUnavailable, "audio collaborator unavailable")
		return
	}

	var req audioDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	if err := s.audio.SetDevice(req.DeviceID); err != nil {
		writeError(w, http.StatusInternalServerError, "set device failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type audioSessionRequest struct {
	SessionID string `json:"sessionId"`
	DeviceID  string `json:"deviceId"`
}

type audioSessionResponse struct {
	Applied   string `json:"applied"`
	Requested string `json:"requested"`
}

// handleAudioSession requests per-session routing. Windows has no
// per-session routing API, so a fallback to system-wide routing must
// never be silently concealed — the response body always names both
// the requested and the actually-applied scope.
func (s *Server) handleAudioSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.audio == nil {
		writeError(w, http.StatusServiceUnavailable, "audio collaborator unavailable")
		return
	}

	var req audioSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "sessionId and deviceId are required")
		return
	}

	applied, err := s.audio.SetSessionRouting(req.SessionID, req.DeviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "set session routing failed")
		return
	}

	writeJSON(w, http.StatusOK, audioSessionResponse{Applied: applied, Requested: "session"})
}
