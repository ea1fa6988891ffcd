// Package sessionmonitor tracks which interactive session is active on
// the console and what's on its input desktop, polling the host on a
// fixed interval.
package sessionmonitor

import (
	"sync"
	"time"

	"github.com/openctrol/agent/internal/logging"
	"github.com/openctrol/agent/internal/platform"
)

var log = logging.L("sessionmonitor")

const (
	defaultPollInterval    = 500 * time.Millisecond
	consecutiveFailureTrip = 3
)

// Listener is notified whenever a poll produces a snapshot that
// differs from the previous one.
type Listener func(platform.SessionSnapshot)

// Monitor polls a platform.SessionDetector on a fixed interval and
// caches the latest snapshot for cheap reads via Current.
type Monitor struct {
	detector platform.SessionDetector

	pollInterval time.Duration

	mu        sync.RWMutex
	snapshot  platform.SessionSnapshot
	failures  int
	listeners []Listener

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Monitor against the given detector. It does not start
// polling until Start is called.
func New(detector platform.SessionDetector) *Monitor {
	return &Monitor{
		detector:     detector,
		pollInterval: defaultPollInterval,
		snapshot:     platform.SessionSnapshot{SessionID: platform.NoSession, Mode: platform.DesktopModeUnknown},
	}
}

// SetPollInterval overrides the default poll cadence; intended for
// tests that want faster convergence than the production 500ms.
func (m *Monitor) SetPollInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollInterval = d
}

// Current returns the most recently cached snapshot.
func (m *Monitor) Current() platform.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// OnChange registers a listener invoked synchronously from the poll
// loop whenever the cached snapshot changes. Must be called before
// Start to avoid missing early transitions.
func (m *Monitor) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Start spawns the polling goroutine. Calling Start twice is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	interval := m.pollInterval
	m.mu.Unlock()

	go m.run(interval)
}

// Stop signals the polling goroutine to exit and waits for it.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.RLock()
		stopCh := m.stopCh
		doneCh := m.doneCh
		m.mu.RUnlock()
		if stopCh == nil {
			return
		}
		close(stopCh)
		<-doneCh
	})
}

func (m *Monitor) run(interval time.Duration) {
	defer close(m.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.poll()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	sid, err := m.detector.ActiveSession()
	if err != nil {
		m.recordFailure(err)
		return
	}

	mode, err := m.detector.DesktopModeFor(sid)
	if err != nil {
		m.recordFailure(err)
		return
	}

	next := platform.SessionSnapshot{SessionID: sid, Mode: mode}
	m.publish(next)
}

// recordFailure leaves the cached snapshot untouched for the first
// two consecutive failures and clears to unknown on the third.
func (m *Monitor) recordFailure(err error) {
	log.Debug("session poll failed", "error", err)

	m.mu.Lock()
	m.failures++
	trip := m.failures >= consecutiveFailureTrip
	if trip {
		m.failures = 0
	}
	m.mu.Unlock()

	if trip {
		m.publish(platform.SessionSnapshot{SessionID: platform.NoSession, Mode: platform.DesktopModeUnknown})
	}
}

func (m *Monitor) publish(next platform.SessionSnapshot) {
	m.mu.Lock()
	prev := m.snapshot
	changed := prev != next
	if changed {
		m.snapshot = next
	}
	m.failures = 0
	listeners := m.listeners
	m.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(next)
	}
}
