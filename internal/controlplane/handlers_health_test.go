package controlplane

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openctrol/agent/internal/broker"
	"github.com/openctrol/agent/internal/capture"
	"github.com/openctrol/agent/internal/health"
)

func newTestServer() (*Server, *fakeEngine, *fakeDispatcher, *fakePower, *broker.Broker) {
	b := broker.New(1, nil, true)
	engine := &fakeEngine{status: capture.Status{Running: true, Mode: "desktop"}}
	dispatcher := &fakeDispatcher{}
	power := &fakePower{}
	h := health.NewMonitor()

	s := New(Config{AgentID: "agent-1", Version: "test"}, b, engine, dispatcher, nil, power, h)
	s.hostUptime = func() (time.Duration, error) { return 24 * time.Hour, nil }
	return s, engine, dispatcher, power, b
}

func TestHandleHealthReportsCaptureAndSessions(t *testing.T) {
	s, engine, _, _, b := newTestServer()
	engine.status = capture.Status{Running: true, Mode: "desktop_degraded", Degraded: true, Reason: "dxgi failed five times"}
	if _, err := b.StartSession("caller-1", 0); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AgentID != "agent-1" {
		t.Errorf("expected agentId agent-1, got %s", resp.AgentID)
	}
	if !resp.RemoteDesktop.Running {
		t.Error("expected remoteDesktop.running to be true")
	}
	if resp.RemoteDesktop.State != "desktop" {
		t.Errorf("expected remoteDesktop.state desktop, got %s", resp.RemoteDesktop.State)
	}
	if !resp.RemoteDesktop.Degraded || resp.RemoteDesktop.Reason != "dxgi failed five times" {
		t.Errorf("expected degraded reason to pass through, got %+v", resp.RemoteDesktop)
	}
	if resp.ActiveSessions != 1 {
		t.Errorf("expected 1 active session, got %d", resp.ActiveSessions)
	}
}

func TestHandleHealthRejectsNonGet(t *testing.T) {
	s, _, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
