package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openctrol/agent/internal/audio"
	"github.com/openctrol/agent/internal/broker"
	"github.com/openctrol/agent/internal/capture"
	"github.com/openctrol/agent/internal/config"
	"github.com/openctrol/agent/internal/controlplane"
	"github.com/openctrol/agent/internal/desktopscope"
	"github.com/openctrol/agent/internal/health"
	"github.com/openctrol/agent/internal/inputdispatch"
	"github.com/openctrol/agent/internal/logging"
	"github.com/openctrol/agent/internal/platform/windows"
	"github.com/openctrol/agent/internal/sessionmonitor"
)

// agentComponents holds every long-lived component runAgent starts, so
// shutdown can stop them: control surface, capture engine, broker, then
// session monitor.
type agentComponents struct {
	sessions *sessionmonitor.Monitor
	engine   *capture.Engine
	br       *broker.Broker
	surface  *controlplane.Server
}

func shutdownAgent(comps *agentComponents) {
	if comps == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := comps.surface.Stop(ctx); err != nil {
		log.Warn("controlplane shutdown error", "error", err)
	}

	comps.engine.Stop()
	comps.br.Stop()
	comps.sessions.Stop()
}

func runAgent() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	log = logging.L("main")

	log.Info("starting agent", "version", version, "agentId", cfg.AgentID, "listenPort", cfg.ListenPort)

	health := health.NewMonitor()

	sessionDetector := windows.NewSessionDetector()
	sessions := sessionmonitor.New(sessionDetector)
	sessions.Start()

	scope := desktopscope.New(sessionDetector, windows.NewImpersonator(), windows.NewDesktopAttacher())

	frameInterval := func() time.Duration {
		return time.Second / time.Duration(cfg.TargetFrameRate)
	}
	engine := capture.New(
		windows.NewDXGIMonitorSource(),
		windows.NewGDIMonitorSource(),
		windows.NewCapturer(),
		scope,
		sessions,
		frameInterval,
	)

	dispatcher := inputdispatch.New(windows.NewInputSynth(), scope, sessions)
	engine.OnMonitorSelected = dispatcher.SetSelectedMonitor
	engine.Start()

	br := broker.New(cfg.MaxConcurrentSessions, cfg.CallerAllowlist, cfg.AllowEmptyAllowlist)
	br.Start()

	audioProvider := audio.NewWindowsProvider()

	surface := controlplane.New(
		controlplane.Config{
			ListenAddr:        fmt.Sprintf(":%d", cfg.ListenPort),
			APIKey:            cfg.APIKey,
			TLSCertPath:       cfg.TLSCertPath,
			AgentID:           cfg.AgentID,
			Version:           version,
			DefaultSessionTTL: time.Duration(cfg.SessionTokenTTLSeconds) * time.Second,
		},
		br,
		engine,
		dispatcher,
		audioProvider,
		controlplane.OSPowerExecutor{},
		health,
	)

	if err := surface.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start control surface: %v\n", err)
		os.Exit(1)
	}

	comps := &agentComponents{sessions: sessions, engine: engine, br: br, surface: surface}

	log.Info("agent is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down agent")
	shutdownAgent(comps)
	log.Info("agent stopped")
}
