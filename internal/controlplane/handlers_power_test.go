package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandlePowerDispatchesRestart(t *testing.T) {
	s, _, _, power, _ := newTestServer()

	body, _ := json.Marshal(powerRequest{Action: "restart"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/power", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !power.restartCalled {
		t.Error("expected Restart to be called")
	}
}

func TestHandlePowerRejectsRestartRightAfterBoot(t *testing.T) {
	s, _, _, power, _ := newTestServer()
	s.hostUptime = func() (time.Duration, error) { return 30 * time.Second, nil }

	body, _ := json.Marshal(powerRequest{Action: "restart"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/power", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if power.restartCalled {
		t.Error("expected Restart not to be called so soon after boot")
	}
}

func TestHandlePowerDispatchesLockToDispatcher(t *testing.T) {
	s, _, dispatcher, _, _ := newTestServer()

	body, _ := json.Marshal(powerRequest{Action: "lock"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/power", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	found := false
	for _, c := range dispatcher.calls {
		if c == "lock" {
			found = true
		}
	}
	if !found {
		t.Error("expected dispatcher.LockWorkstation to be called")
	}
}

func TestHandlePowerRejectsUnknownAction(t *testing.T) {
	s, _, _, _, _ := newTestServer()

	body, _ := json.Marshal(powerRequest{Action: "reboot-into-bios"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/power", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
