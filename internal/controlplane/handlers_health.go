package controlplane

import (
	"net/http"
	"strings"

	"github.com/openctrol/agent/internal/health"
)

// remoteDesktopStatus mirrors the capture engine's desktop-mode enum
// (desktop, loginScreen, locked, unknown) in State, separately from
// whether the engine is currently degraded.
type remoteDesktopStatus struct {
	Running  bool   `json:"running"`
	State    string `json:"state"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

type healthResponse struct {
	AgentID           string              `json:"agentId"`
	UptimeSeconds     int64               `json:"uptimeSeconds"`
	HostUptimeSeconds int64               `json:"hostUptimeSeconds,omitempty"`
	OverallStatus     string              `json:"overallStatus"`
	RemoteDesktop     remoteDesktopStatus `json:"remoteDesktop"`
	ActiveSessions    int                 `json:"activeSessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := s.engine.Status()
	overall := "unknown"
	if s.health != nil {
		overall = string(s.health.Overall())
	}

	var hostUptimeSeconds int64
	if hostUptime, _, err := health.HostInfo(); err == nil {
		hostUptimeSeconds = int64(hostUptime.Seconds())
	}

	resp := healthResponse{
		AgentID:           s.cfg.AgentID,
		UptimeSeconds:     int64(s.uptime().Seconds()),
		HostUptimeSeconds: hostUptimeSeconds,
		OverallStatus:     overall,
		RemoteDesktop: remoteDesktopStatus{
			Running:  status.Running,
			State:    strings.TrimSuffix(status.Mode, "_degraded"),
			Degraded: status.Degraded,
			Reason:   status.Reason,
		},
		ActiveSessions: s.broker.ActiveSessionCount(),
	}
	writeJSON(w, http.StatusOK, resp)
}
