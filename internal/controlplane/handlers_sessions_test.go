package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openctrol/agent/internal/broker"
)

func TestHandleStartSessionHappyPath(t *testing.T) {
	s, _, _, _, _ := newTestServer()

	body, _ := json.Marshal(startSessionRequest{CallerID: "caller-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/desktop", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp startSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected a non-empty session id")
	}
	if resp.StreamURL == "" {
		t.Error("expected a non-empty stream url")
	}
}

func TestHandleStartSessionRejectsDisallowedCaller(t *testing.T) {
	b := broker.New(1, []string{"allowed-caller"}, false)
	s, engine, dispatcher, power, _ := newTestServer()
	_ = engine
	_ = dispatcher
	_ = power
	s.broker = b

	body, _ := json.Marshal(startSessionRequest{CallerID: "someone-else"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/desktop", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandleStartSessionEnforcesConcurrencyCap(t *testing.T) {
	b := broker.New(1, nil, true)
	s, _, _, _, _ := newTestServer()
	s.broker = b

	body, _ := json.Marshal(startSessionRequest{CallerID: "caller-1"})

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/desktop", bytes.NewReader(body))
	rec1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first session should succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/desktop", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusServiceUnavailable {
		t.Errorf("second session should be rejected with 503, got %d", rec2.Code)
	}
}

func TestHandleEndSessionLifecycle(t *testing.T) {
	s, _, _, _, b := newTestServer()

	session, err := b.StartSession("caller-1", 0)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/desktop/"+session.ID+"/end", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if _, ok := b.Session(session.ID); ok {
		t.Error("expected session to be gone after end")
	}
}

func TestHandleEndSessionUnknown(t *testing.T) {
	s, _, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/desktop/does-not-exist/end", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
