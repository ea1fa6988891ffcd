package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openctrol/agent/internal/audio"
	"github.com/openctrol/agent/internal/broker"
	"github.com/openctrol/agent/internal/health"
)

func newTestServerWithAudio(provider audio.Provider) *Server {
	b := broker.New(1, nil, true)
	engine := &fakeEngine{}
	dispatcher := &fakeDispatcher{}
	power := &fakePower{}
	h := health.NewMonitor()
	return New(Config{AgentID: "agent-1", Version: "test"}, b, engine, dispatcher, provider, power, h)
}

func TestHandleAudioStateUnavailableWithoutProvider(t *testing.T) {
	s := newTestServerWithAudio(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audio/state", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandleAudioStateReturnsDevices(t *testing.T) {
	provider := audio.NewFakeProvider([]audio.Device{{ID: "a", Name: "Speakers"}}, "a")
	s := newTestServerWithAudio(provider)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audio/state", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state audio.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.ActiveDeviceID != "a" {
		t.Errorf("expected active device a, got %s", state.ActiveDeviceID)
	}
}

func TestHandleAudioSessionReportsDivergence(t *testing.T) {
	provider := audio.NewFakeProvider([]audio.Device{{ID: "a", Name: "Speakers"}, {ID: "b", Name: "Headset"}}, "a")
	s := newTestServerWithAudio(provider)

	body, _ := json.Marshal(audioSessionRequest{SessionID: "sess-1", DeviceID: "b"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp audioSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Requested != "session" {
		t.Errorf("expected requested scope session, got %s", resp.Requested)
	}
	if resp.Applied != "system-wide" {
		t.Errorf("expected applied scope to reveal the system-wide fallback, got %s", resp.Applied)
	}
}

func TestHandleAudioDeviceRequiresDeviceID(t *testing.T) {
	provider := audio.NewFakeProvider([]audio.Device{{ID: "a", Name: "Speakers"}}, "a")
	s := newTestServerWithAudio(provider)

	body, _ := json.Marshal(audioDeviceRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio/device", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
