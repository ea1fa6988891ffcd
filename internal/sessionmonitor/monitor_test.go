package sessionmonitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openctrol/agent/internal/platform"
	"github.com/openctrol/agent/internal/platform/fake"
)

func TestCurrentDefaultsToUnknown(t *testing.T) {
	m := New(&fake.SessionDetector{})
	got := m.Current()
	if got.SessionID != platform.NoSession || got.Mode != platform.DesktopModeUnknown {
		t.Fatalf("Current() = %+v, want unknown snapshot", got)
	}
}

func TestPollUpdatesSnapshot(t *testing.T) {
	det := &fake.SessionDetector{Snapshots: []platform.SessionSnapshot{
		{SessionID: 1, Mode: platform.DesktopModeDesktop},
	}}
	m := New(det)
	m.SetPollInterval(5 * time.Millisecond)
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Current().SessionID == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Current() never reflected the detector snapshot, got %+v", m.Current())
}

func TestOnChangeFiresOnTransition(t *testing.T) {
	det := &fake.SessionDetector{Snapshots: []platform.SessionSnapshot{
		{SessionID: 1, Mode: platform.DesktopModeDesktop},
		{SessionID: 1, Mode: platform.DesktopModeLocked},
	}}
	m := New(det)
	m.SetPollInterval(5 * time.Millisecond)

	var mu sync.Mutex
	var seen []platform.SessionSnapshot
	m.OnChange(func(s platform.SessionSnapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 {
		t.Fatalf("expected at least 2 transitions, got %d: %+v", len(seen), seen)
	}
	if seen[0].Mode != platform.DesktopModeDesktop {
		t.Fatalf("first transition mode = %v, want desktop", seen[0].Mode)
	}
	if seen[len(seen)-1].Mode != platform.DesktopModeLocked {
		t.Fatalf("last transition mode = %v, want locked", seen[len(seen)-1].Mode)
	}
}

func TestThreeConsecutiveFailuresClearToUnknown(t *testing.T) {
	det := &fake.SessionDetector{Err: errors.New("boom")}
	m := New(det)
	m.SetPollInterval(5 * time.Millisecond)

	// seed a non-unknown snapshot directly so we can observe the clear
	m.mu.Lock()
	m.snapshot = platform.SessionSnapshot{SessionID: 7, Mode: platform.DesktopModeDesktop}
	m.mu.Unlock()

	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Current().Mode == platform.DesktopModeUnknown {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("snapshot never cleared to unknown after repeated failures, got %+v", m.Current())
}

func TestStopIsIdempotent(t *testing.T) {
	m := New(&fake.SessionDetector{})
	m.Start()
	m.Stop()
	m.Stop()
}
