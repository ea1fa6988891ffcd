package controlplane

import (
	"encoding/json"
	"net/http"
	"time"
)

type powerRequest struct {
	Action string `json:"action"`
}

// minUptimeBeforeReboot guards against a caller issuing a restart
// moments after the host already came back from one, which would
// otherwise produce a reboot loop. Shutdown requests are not checked
// against it.
const minUptimeBeforeReboot = 2 * time.Minute

// handlePower dispatches restart/shutdown to the PowerExecutor
// collaborator and lock straight to the input dispatcher's
// LockWorkstation, which shares the user32.dll family with
// ExitWindowsEx (see SPEC_FULL.md supplemented features).
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	switch req.Action {
	case "restart":
		if s.power == nil {
			writeError(w, http.StatusServiceUnavailable, "power control unavailable")
			return
		}
		if uptime, err := s.hostUptime(); err == nil && uptime < minUptimeBeforeReboot {
			writeError(w, http.StatusConflict, "host rebooted too recently, refusing restart")
			return
		}
		if err := s.power.Restart(); err != nil {
			writeError(w, http.StatusInternalServerError, "restart failed")
			return
		}
	case "shutdown":
		if s.power == nil {
			writeError(w, http.StatusServiceUnavailable, "power control unavailable")
			return
		}
		if err := s.power.Shutdown(); err != nil {
			writeError(w, http.StatusInternalServerError, "shutdown failed")
			return
		}
	case "lock":
		if err := s.dispatcher.LockWorkstation(); err != nil {
			writeError(w, http.StatusInternalServerError, "lock failed")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
