package controlplane

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openctrol/agent/internal/broker"
	"github.com/openctrol/agent/internal/capture"
	"github.com/openctrol/agent/internal/health"
	"github.com/openctrol/agent/internal/platform"
)

func newStreamTestServer(t *testing.T) (*httptest.Server, *Server, *broker.Broker, *fakeEngine) {
	t.Helper()
	b := broker.New(2, nil, true)
	engine := &fakeEngine{monitors: []platform.MonitorInfo{{ID: "mon-0"}}}
	dispatcher := &fakeDispatcher{}
	s := New(Config{AgentID: "agent-1", Version: "test"}, b, engine, dispatcher, nil, nil, health.NewMonitor())
	httpServer := httptest.NewServer(s.Handler())
	t.Cleanup(httpServer.Close)
	return httpServer, s, b, engine
}

func wsURL(httpServer *httptest.Server, sessID, token string) string {
	u, _ := url.Parse(httpServer.URL)
	u.Scheme = "ws"
	u.Path = "/ws/desktop"
	u.RawQuery = fmt.Sprintf("sess=%s&token=%s", sessID, token)
	return u.String()
}

func TestStreamRejectsInvalidToken(t *testing.T) {
	httpServer, _, b, _ := newStreamTestServer(t)
	session, err := b.StartSession("caller-1", 0)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(httpServer, session.ID, "not-a-real-token"), nil)
	if err == nil {
		t.Fatal("expected the upgrade to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", resp)
	}
}

func TestStreamSendsHelloAndFrames(t *testing.T) {
	httpServer, _, b, engine := newStreamTestServer(t)

	session, err := b.StartSession("caller-1", 0)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	tok, err := b.IssueToken("caller-1", 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(httpServer, session.ID, tok.Value), nil)
	if err != nil {
		t.Fatalf("dial failed: %v (status %+v)", err, resp)
	}
	defer conn.Close()

	_, helloBytes, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading hello frame: %v", err)
	}
	if !strings.Contains(string(helloBytes), `"type":"hello"`) {
		t.Errorf("expected a hello frame, got %s", helloBytes)
	}
	if !strings.Contains(string(helloBytes), session.ID) {
		t.Errorf("expected hello frame to carry the session id, got %s", helloBytes)
	}

	var sink capture.FrameSink
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		engine.mu.Lock()
		if len(engine.sinks) > 0 {
			sink = engine.sinks[0]
		}
		engine.mu.Unlock()
		if sink != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if sink == nil {
		t.Fatal("expected the stream handler to subscribe a frame sink")
	}

	sink.PublishFrame(capture.RemoteFrame{Width: 4, Height: 2, Format: "jpeg", Payload: []byte{1, 2, 3}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame, got message type %d", msgType)
	}
	if string(data[0:4]) != frameMagic {
		t.Errorf("expected frame to start with magic %q, got %q", frameMagic, data[0:4])
	}
}

func TestStreamClosesWithCode1009OnOversizeMessage(t *testing.T) {
	httpServer, _, b, _ := newStreamTestServer(t)

	session, err := b.StartSession("caller-1", 0)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	tok, err := b.IssueToken("caller-1", 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(httpServer, session.ID, tok.Value), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("reading hello frame: %v", err)
	}

	oversized := make([]byte, maxMessageBytes+1024)
	if err := conn.WriteMessage(websocket.TextMessage, oversized); err != nil {
		t.Fatalf("writing oversized message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error after the oversize message, got %v", err)
	}
	if closeErr.Code != websocket.CloseMessageTooBig {
		t.Errorf("expected close code %d, got %d", websocket.CloseMessageTooBig, closeErr.Code)
	}
	if !strings.Contains(closeErr.Text, fmt.Sprintf("%d", maxMessageBytes)) {
		t.Errorf("expected close reason to reference the byte limit, got %q", closeErr.Text)
	}
}

func TestStreamEndsSessionOnClose(t *testing.T) {
	httpServer, _, b, _ := newStreamTestServer(t)

	session, err := b.StartSession("caller-1", 0)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	tok, err := b.IssueToken("caller-1", 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(httpServer, session.ID, tok.Value), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := b.Session(session.ID); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("expected the session to be ended once the connection closes")
}
