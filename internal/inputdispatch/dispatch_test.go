package inputdispatch

import (
	"errors"
	"testing"

	"github.com/openctrol/agent/internal/desktopscope"
	"github.com/openctrol/agent/internal/platform"
	"github.com/openctrol/agent/internal/platform/fake"
	"github.com/openctrol/agent/internal/sessionmonitor"
)

func newTestDispatcher(synth *fake.InputSynth) *Dispatcher {
	det := &fake.SessionDetector{Snapshots: []platform.SessionSnapshot{{SessionID: 1, Mode: platform.DesktopModeDesktop}}}
	scope := desktopscope.New(det, &fake.Impersonator{}, &fake.DesktopAttacher{})
	sessions := sessionmonitor.New(det)
	return New(synth, scope, sessions)
}

func TestMoveRelativeClampsToInt16Range(t *testing.T) {
	synth := &fake.InputSynth{}
	d := newTestDispatcher(synth)

	if err := d.MoveRelative(100000, -100000); err != nil {
		t.Fatalf("MoveRelative() error = %v", err)
	}
	want := "moveRelative(32767,-32767)"
	if len(synth.Calls) != 1 || synth.Calls[0] != want {
		t.Fatalf("calls = %v, want [%s]", synth.Calls, want)
	}
}

func TestMoveAbsoluteWithoutSelectedMonitorFails(t *testing.T) {
	synth := &fake.InputSynth{}
	d := newTestDispatcher(synth)

	if err := d.MoveAbsolute(0, 0); err == nil {
		t.Fatal("expected error with no monitor selected")
	}
}

func TestMoveAbsoluteMapsIntoVirtualDesktop(t *testing.T) {
	synth := &fake.InputSynth{MaxX: 3840, MaxY: 1080}
	d := newTestDispatcher(synth)
	d.SetSelectedMonitor(platform.MonitorInfo{ID: "DISPLAY0", Width: 1920, Height: 1080, X: 1920, Y: 0})
	synth.Calls = nil // clear the warp-to-center call from SetSelectedMonitor

	if err := d.MoveAbsolute(0, 0); err != nil {
		t.Fatalf("MoveAbsolute() error = %v", err)
	}
	if len(synth.Calls) != 1 {
		t.Fatalf("calls = %v, want exactly one moveAbsolute", synth.Calls)
	}
	want := "moveAbsolute(32767,0)"
	if synth.Calls[0] != want {
		t.Fatalf("calls[0] = %q, want %q", synth.Calls[0], want)
	}
}

func TestWheelClampsBothAxes(t *testing.T) {
	synth := &fake.InputSynth{}
	d := newTestDispatcher(synth)

	if err := d.Wheel(-99999, 99999); err != nil {
		t.Fatalf("Wheel() error = %v", err)
	}
	want := "wheel(-32768,32767)"
	if synth.Calls[0] != want {
		t.Fatalf("calls[0] = %q, want %q", synth.Calls[0], want)
	}
}

func TestKeyDownPressesModifiersInCanonicalOrder(t *testing.T) {
	synth := &fake.InputSynth{}
	d := newTestDispatcher(synth)

	if err := d.KeyDown(0x41, []string{"win", "shift", "ctrl", "alt"}); err != nil {
		t.Fatalf("KeyDown() error = %v", err)
	}

	want := []string{
		"keyDown(0x11)", // ctrl
		"keyDown(0x12)", // alt
		"keyDown(0x10)", // shift
		"keyDown(0x5B)", // win
		"keyDown(0x41)", // main key
	}
	if len(synth.Calls) != len(want) {
		t.Fatalf("calls = %v, want %v", synth.Calls, want)
	}
	for i := range want {
		if synth.Calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", synth.Calls, want)
		}
	}
}

func TestKeyUpReleasesKeyThenModifiersReversed(t *testing.T) {
	synth := &fake.InputSynth{}
	d := newTestDispatcher(synth)

	if err := d.KeyUp(0x41, []string{"ctrl", "alt"}); err != nil {
		t.Fatalf("KeyUp() error = %v", err)
	}
	want := []string{"keyUp(0x41)", "keyUp(0x12)", "keyUp(0x11)"}
	if len(synth.Calls) != len(want) {
		t.Fatalf("calls = %v, want %v", synth.Calls, want)
	}
	for i := range want {
		if synth.Calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", synth.Calls, want)
		}
	}
}

func TestKeyDownUnwindsModifiersOnMainKeyFailure(t *testing.T) {
	synth := &fake.InputSynth{}
	// fails the 3rd KeyDown call: ctrl(1), alt(2), main key(3)
	wrapped := &failingAfterN{InputSynth: synth, n: 3, err: errors.New("boom")}
	d := newTestDispatcherWithSynth(wrapped)

	if err := d.KeyDown(0x41, []string{"ctrl", "alt"}); err == nil {
		t.Fatal("expected KeyDown to fail")
	}

	want := []string{"keyDown(0x11)", "keyDown(0x12)", "keyUp(0x12)", "keyUp(0x11)"}
	if len(synth.Calls) != len(want) {
		t.Fatalf("calls = %v, want %v", synth.Calls, want)
	}
	for i := range want {
		if synth.Calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", synth.Calls, want)
		}
	}
}

func newTestDispatcherWithSynth(synth platform.InputSynth) *Dispatcher {
	det := &fake.SessionDetector{Snapshots: []platform.SessionSnapshot{{SessionID: 1, Mode: platform.DesktopModeDesktop}}}
	scope := desktopscope.New(det, &fake.Impersonator{}, &fake.DesktopAttacher{})
	sessions := sessionmonitor.New(det)
	return New(synth, scope, sessions)
}

// failingAfterN wraps an InputSynth and fails the Nth KeyDown call
// only, to exercise the mid-sequence-failure unwind path.
type failingAfterN struct {
	platform.InputSynth
	n     int
	calls int
	err   error
}

func (f *failingAfterN) KeyDown(vk uint16) error {
	f.calls++
	if f.calls == f.n {
		return f.err
	}
	return f.InputSynth.KeyDown(vk)
}

func TestTextTranslatesCharsWithShiftWhenNeeded(t *testing.T) {
	synth := &fake.InputSynth{}
	d := newTestDispatcher(synth)

	if err := d.Text("aB", nil); err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	want := []string{
		"keyDown(0x41)", "keyUp(0x41)", // 'a' -> VK_A, no shift
		"keyDown(0x10)", "keyDown(0x42)", "keyUp(0x42)", "keyUp(0x10)", // 'B' -> shift+VK_B
	}
	if len(synth.Calls) != len(want) {
		t.Fatalf("calls = %v, want %v", synth.Calls, want)
	}
	for i := range want {
		if synth.Calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", synth.Calls, want)
		}
	}
}
