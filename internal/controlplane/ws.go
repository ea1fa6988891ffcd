package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageBytes = 65536
	sendTimeout     = 5 * time.Millisecond
	expiryInterval  = 10 * time.Second
	taskJoinBudget  = time.Second

	// readLimitBackstop is set well above maxMessageBytes so gorilla's
	// own SetReadLimit enforcement, which closes with code 1009 but no
	// reason, is only a last resort against a runaway peer; the normal
	// oversize path is wsReceiveLoop's own length check below, which
	// can report the actual byte count.
	readLimitBackstop = maxMessageBytes * 4
)

type helloFrame struct {
	Type      string   `json:"type"`
	AgentID   string   `json:"agentId"`
	SessionID string   `json:"sessionId"`
	Version   string   `json:"version"`
	Monitors  []string `json:"monitors"`
}

type wsInputMessage struct {
	Type      string `json:"type"`
	Dx        int32  `json:"dx"`
	Dy        int32  `json:"dy"`
	Absolute  bool   `json:"absolute"`
	X         int32  `json:"x"`
	Y         int32  `json:"y"`
	Button    string `json:"button"`
	Action    string `json:"action"`
	DeltaX    int32  `json:"delta_x"`
	DeltaY    int32  `json:"delta_y"`
	KeyCode   uint16 `json:"key_code"`
	Ctrl      bool   `json:"ctrl"`
	Alt       bool   `json:"alt"`
	Shift     bool   `json:"shift"`
	Win       bool   `json:"win"`
	Text      string `json:"text"`
	MonitorID string `json:"monitor_id"`
}

// inputMessageTypes are rate-limited by the per-stream sliding window;
// monitor_select and quality are control messages, not input events.
var inputMessageTypes = map[string]bool{
	"pointer_move":   true,
	"pointer_button": true,
	"pointer_wheel":  true,
	"key":            true,
	"text":           true,
}

// streamCloseCause records why handleStream's worker goroutines ended
// the connection, defaulting to a normal closure (covers both session
// end and expiry, which share code 1000). Whichever goroutine detects
// an abnormal cause first wins; later calls are no-ops.
type streamCloseCause struct {
	once   sync.Once
	code   int
	reason string
}

func newStreamCloseCause() *streamCloseCause {
	return &streamCloseCause{code: websocket.CloseNormalClosure}
}

func (c *streamCloseCause) set(code int, reason string) {
	c.once.Do(func() {
		c.code = code
		c.reason = reason
	})
}

func (m wsInputMessage) modifiers() []string {
	var mods []string
	if m.Ctrl {
		mods = append(mods, "ctrl")
	}
	if m.Alt {
		mods = append(mods, "alt")
	}
	if m.Shift {
		mods = append(mods, "shift")
	}
	if m.Win {
		mods = append(mods, "win")
	}
	return mods
}

// handleStream implements the /ws/desktop upgrade and streaming
// protocol: validate token and session before upgrading, send a hello
// frame, then run the receive/send/expiry loops until one of them
// cancels the shared context.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusBadRequest, "expected websocket upgrade")
		return
	}

	sessID := r.URL.Query().Get("sess")
	tokenValue := r.URL.Query().Get("token")

	tok, err := s.broker.ValidateToken(tokenValue)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	session, ok := s.broker.Session(sessID)
	if !ok || session.CallerID != tok.CallerID {
		writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("controlplane: websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimitBackstop)

	ctx, cancel := context.WithCancel(context.Background())
	session.Attach(cancel)

	writeMu := newTimeoutMutex()

	monitors := make([]string, 0)
	for _, m := range s.engine.ListMonitors() {
		monitors = append(monitors, m.ID)
	}
	hello := helloFrame{
		Type:      "hello",
		AgentID:   s.cfg.AgentID,
		SessionID: sessID,
		Version:   s.cfg.Version,
		Monitors:  monitors,
	}
	if payload, err := json.Marshal(hello); err == nil {
		writeText(conn, writeMu, payload)
	}

	sub := newFrameSubscriber()
	s.engine.Subscribe(sub)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	cause := newStreamCloseCause()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); defer cancel(); s.wsReceiveLoop(conn, cause) }()
	go func() { defer wg.Done(); defer cancel(); s.wsSendLoop(ctx, conn, sub, writeMu) }()
	go func() { defer wg.Done(); defer cancel(); s.wsExpiryLoop(ctx, sessID) }()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(taskJoinBudget):
		log.Warn("controlplane: stream tasks did not exit within join budget", "sessionId", sessID)
		<-done
	}

	s.engine.Unsubscribe(sub)
	s.broker.EndSession(sessID)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(cause.code, cause.reason),
		time.Now().Add(time.Second))
	conn.Close()
}

func writeBinary(conn *websocket.Conn, mu *timeoutMutex, data []byte) {
	if !mu.tryLock(sendTimeout) {
		return
	}
	defer mu.unlock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		log.Debug("controlplane: frame write failed", "error", err)
	}
}

func writeText(conn *websocket.Conn, mu *timeoutMutex, data []byte) {
	if !mu.tryLock(sendTimeout) {
		return
	}
	defer mu.unlock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug("controlplane: text write failed", "error", err)
	}
}

func (s *Server) wsSendLoop(ctx context.Context, conn *websocket.Conn, sub *frameSubscriber, mu *timeoutMutex) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-sub.frames:
			payload, err := encodeFrame(frame)
			if err != nil {
				log.Debug("controlplane: encode frame failed", "error", err)
				continue
			}
			writeBinary(conn, mu, payload)
		}
	}
}

func (s *Server) wsReceiveLoop(conn *websocket.Conn, cause *streamCloseCause) {
	window := &inputRateWindow{}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isOversizeReadError(err) {
				cause.set(websocket.CloseMessageTooBig,
					fmt.Sprintf("message exceeds %d byte limit", maxMessageBytes))
			}
			return
		}
		if len(data) > maxMessageBytes {
			cause.set(websocket.CloseMessageTooBig,
				fmt.Sprintf("message of %d bytes exceeds %d byte limit", len(data), maxMessageBytes))
			return
		}

		var msg wsInputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("controlplane: malformed input message", "error", err)
			continue
		}

		if inputMessageTypes[msg.Type] && !window.allow() {
			continue
		}

		s.dispatchInput(msg)
	}
}

// isOversizeReadError reports whether err stems from a peer message
// exceeding conn.SetReadLimit(readLimitBackstop), the last-resort cap
// above the ordinary maxMessageBytes check in wsReceiveLoop. gorilla
// surfaces this either as the sentinel websocket.ErrReadLimit (read
// aborted locally mid-frame) or, once the peer's own close frame
// round-trips, as an unexpected close error carrying code 1009.
func isOversizeReadError(err error) bool {
	if err == websocket.ErrReadLimit {
		return true
	}
	return websocket.IsUnexpectedCloseError(err, websocket.CloseMessageTooBig)
}

func (s *Server) dispatchInput(msg wsInputMessage) {
	switch msg.Type {
	case "pointer_move":
		if msg.Absolute {
			_ = s.dispatcher.MoveAbsolute(msg.X, msg.Y)
		} else {
			_ = s.dispatcher.MoveRelative(msg.Dx, msg.Dy)
		}
	case "pointer_button":
		_ = s.dispatcher.Button(msg.Button, msg.Action == "down")
	case "pointer_wheel":
		_ = s.dispatcher.Wheel(msg.DeltaX, msg.DeltaY)
	case "key":
		if msg.Action == "up" {
			_ = s.dispatcher.KeyUp(msg.KeyCode, msg.modifiers())
		} else {
			_ = s.dispatcher.KeyDown(msg.KeyCode, msg.modifiers())
		}
	case "text":
		_ = s.dispatcher.Text(msg.Text, msg.modifiers())
	case "monitor_select":
		if err := s.engine.SelectMonitor(msg.MonitorID); err != nil {
			log.Debug("controlplane: monitor_select failed", "error", err)
		}
	case "sas":
		_ = s.dispatcher.InvokeSAS()
	case "quality":
		// accepted and ignored.
	default:
		log.Debug("controlplane: ignoring unknown input message type", "type", msg.Type)
	}
}

func (s *Server) wsExpiryLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(expiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session, ok := s.broker.Session(sessionID)
			if !ok || time.Now().After(session.ExpiresAt) {
				return
			}
		}
	}
}
