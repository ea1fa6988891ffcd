package controlplane

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openctrol/agent/internal/health"
)

// Config carries the ambient settings the control surface needs but
// does not own: listen address, API key, and optional TLS certificate.
// TLSCertPath, when set, names a PEM file containing both certificate
// and private key; decrypting TLSCertPassBlob for an encrypted key
// store is not implemented (see DESIGN.md).
type Config struct {
	ListenAddr        string
	APIKey            string
	TLSCertPath       string
	AgentID           string
	Version           string
	DefaultSessionTTL time.Duration
}

// Server is the agent's REST + websocket control surface.
type Server struct {
	cfg Config

	broker     Broker
	engine     CaptureEngine
	dispatcher Dispatcher
	audio      AudioProvider
	power      PowerExecutor
	health     *health.Monitor

	startedAt time.Time
	upgrader  websocket.Upgrader
	limiter   *rate.Limiter

	// hostUptime reports how long the underlying machine has been up,
	// as opposed to s.uptime's agent-process uptime. Overridable in
	// tests so the restart pre-flight check doesn't depend on the
	// uptime of whatever machine runs the test.
	hostUptime func() (time.Duration, error)

	httpServer *http.Server
}

// New builds a Server wired to its collaborators. audio and power may
// be nil; the corresponding endpoints then report 503.
func New(cfg Config, b Broker, engine CaptureEngine, dispatcher Dispatcher, audio AudioProvider, power PowerExecutor, h *health.Monitor) *Server {
	s := &Server{
		cfg:        cfg,
		broker:     b,
		engine:     engine,
		dispatcher: dispatcher,
		audio:      audio,
		power:      power,
		health:     h,
		startedAt:  time.Now(),
		limiter:    newGlobalLimiter(),
		hostUptime: func() (time.Duration, error) {
			uptime, _, err := health.HostInfo()
			return uptime, err
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	return s
}

// Handler builds the ServeMux for plain net/http dispatch rather than
// a router framework.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", rateLimit(s.limiter, s.handleHealth))
	mux.HandleFunc("/api/v1/sessions/desktop", requireAPIKey(s.cfg.APIKey, s.handleStartSession))
	mux.HandleFunc("/api/v1/sessions/desktop/", requireAPIKey(s.cfg.APIKey, s.handleEndSession))
	mux.HandleFunc("/api/v1/power", requireAPIKey(s.cfg.APIKey, s.handlePower))
	mux.HandleFunc("/api/v1/audio/state", requireAPIKey(s.cfg.APIKey, s.handleAudioState))
	mux.HandleFunc("/api/v1/audio/device", requireAPIKey(s.cfg.APIKey, s.handleAudioDevice))
	mux.HandleFunc("/api/v1/audio/session", requireAPIKey(s.cfg.APIKey, s.handleAudioSession))
	mux.HandleFunc("/ws/desktop", rateLimit(s.limiter, s.handleStream))

	return mux
}

// Start binds the listen address synchronously, so a bad port surfaces
// immediately, then serves in a background goroutine.
func (s *Server) Start() error {
	s.httpServer = &http.Server{Handler: s.Handler()}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	if s.cfg.TLSCertPath != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertPath, s.cfg.TLSCertPath)
		if err != nil {
			ln.Close()
			return err
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("controlplane: serve failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.startedAt)
}

func sessionPathID(path, prefix, suffix string) (string, bool) {
	if len(path) <= len(prefix)+len(suffix) {
		return "", false
	}
	if path[:len(prefix)] != prefix || path[len(path)-len(suffix):] != suffix {
		return "", false
	}
	return path[len(prefix) : len(path)-len(suffix)], true
}
