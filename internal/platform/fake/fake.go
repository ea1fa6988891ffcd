// Package fake stands in for internal/platform/windows in tests: every
// real OS call becomes a field on a struct the test can set up and
// inspect afterward.
package fake

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/openctrol/agent/internal/platform"
)

// SessionDetector replays a queue of snapshots, one per ActiveSession
// call, falling back to the last entry once the queue is drained.
// DesktopModeFor reports the mode of the snapshot ActiveSession last
// returned.
type SessionDetector struct {
	mu        sync.Mutex
	Snapshots []platform.SessionSnapshot
	idx       int
	Err       error
}

func (d *SessionDetector) next() platform.SessionSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Snapshots) == 0 {
		return platform.SessionSnapshot{SessionID: platform.NoSession, Mode: platform.DesktopModeUnknown}
	}
	i := d.idx
	if i >= len(d.Snapshots) {
		i = len(d.Snapshots) - 1
	} else {
		d.idx++
	}
	return d.Snapshots[i]
}

// last returns the snapshot the most recent ActiveSession call handed
// out, without advancing the queue.
func (d *SessionDetector) last() platform.SessionSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Snapshots) == 0 {
		return platform.SessionSnapshot{SessionID: platform.NoSession, Mode: platform.DesktopModeUnknown}
	}
	i := d.idx - 1
	if i < 0 {
		i = 0
	}
	return d.Snapshots[i]
}

func (d *SessionDetector) ActiveSession() (platform.SessionID, error) {
	if d.Err != nil {
		return platform.NoSession, d.Err
	}
	return d.next().SessionID, nil
}

func (d *SessionDetector) DesktopModeFor(platform.SessionID) (platform.DesktopMode, error) {
	if d.Err != nil {
		return platform.DesktopModeUnknown, d.Err
	}
	return d.last().Mode, nil
}

// Token is a no-op impersonation token.
type Token struct {
	Closed bool
}

func (t *Token) Close() error {
	t.Closed = true
	return nil
}

// Desktop is a named no-op desktop handle.
type Desktop struct {
	NameVal string
	Closed  bool
}

func (d *Desktop) Close() error {
	d.Closed = true
	return nil
}

func (d *Desktop) Name() string { return d.NameVal }

// Impersonator records the sequence of tokens attached/cleared so
// tests can assert acquisition and release order.
type Impersonator struct {
	mu          sync.Mutex
	Calls       []string
	TokenErr    error
	SetErr      error
	issuedToken *Token
}

func (i *Impersonator) ImpersonationToken(sid platform.SessionID) (platform.Token, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.TokenErr != nil {
		return nil, i.TokenErr
	}
	i.Calls = append(i.Calls, fmt.Sprintf("token(%d)", sid))
	i.issuedToken = &Token{}
	return i.issuedToken, nil
}

func (i *Impersonator) SetThreadToken(platform.Token) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.SetErr != nil {
		return i.SetErr
	}
	i.Calls = append(i.Calls, "set")
	return nil
}

func (i *Impersonator) ClearThreadToken() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, "clear")
	return nil
}

// DesktopAttacher tracks the stack of attached desktops so tests can
// verify every RunScoped call restores its prior desktop.
type DesktopAttacher struct {
	mu             sync.Mutex
	Calls          []string
	OpenInputErr   error
	OpenNamedErr   error
	OpenSecureErr  error
	SetErr         error
	currentDesktop platform.Desktop
}

func (a *DesktopAttacher) OpenInputDesktop() (platform.Desktop, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.OpenInputErr != nil {
		return nil, a.OpenInputErr
	}
	a.Calls = append(a.Calls, "open-input")
	return &Desktop{NameVal: "input"}, nil
}

func (a *DesktopAttacher) OpenNamedDesktop(name string) (platform.Desktop, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.OpenNamedErr != nil {
		return nil, a.OpenNamedErr
	}
	a.Calls = append(a.Calls, "open-named:"+name)
	return &Desktop{NameVal: name}, nil
}

func (a *DesktopAttacher) OpenSecureDesktop() (platform.Desktop, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.OpenSecureErr != nil {
		return nil, a.OpenSecureErr
	}
	a.Calls = append(a.Calls, "open-secure")
	return &Desktop{NameVal: "Winlogon"}, nil
}

func (a *DesktopAttacher) SetThreadDesktop(d platform.Desktop) (platform.Desktop, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SetErr != nil {
		return nil, a.SetErr
	}
	prev := a.currentDesktop
	a.currentDesktop = d
	a.Calls = append(a.Calls, "set:"+d.Name())
	if prev == nil {
		prev = &Desktop{NameVal: "previous"}
	}
	return prev, nil
}

// MonitorSource returns a fixed list or a fixed error.
type MonitorSource struct {
	Monitors []platform.MonitorInfo
	Err      error
}

func (m *MonitorSource) Enumerate() ([]platform.MonitorInfo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Monitors, nil
}

// Capturer returns strategies that either succeed with a solid-color
// image or fail, in whatever order the test configures.
type Capturer struct {
	// Fail, indexed by strategy position, makes that strategy return an
	// error instead of an image.
	Fail []bool
	Tone color.RGBA
}

func (c *Capturer) CaptureStrategies() []platform.CaptureStrategy {
	n := len(c.Fail)
	if n == 0 {
		n = 3
	}
	strategies := make([]platform.CaptureStrategy, n)
	for i := 0; i < n; i++ {
		idx := i
		strategies[idx] = func(mon platform.MonitorInfo) (*image.RGBA, error) {
			if idx < len(c.Fail) && c.Fail[idx] {
				return nil, fmt.Errorf("fake: strategy %d failed", idx)
			}
			img := image.NewRGBA(image.Rect(0, 0, mon.Width, mon.Height))
			tone := c.Tone
			if tone == (color.RGBA{}) {
				tone = color.RGBA{R: 10, G: 20, B: 30, A: 255}
			}
			for p := 0; p < len(img.Pix); p += 4 {
				img.Pix[p+0] = tone.R
				img.Pix[p+1] = tone.G
				img.Pix[p+2] = tone.B
				img.Pix[p+3] = 255
			}
			return img, nil
		}
	}
	return strategies
}

// InputSynth records every call made to it.
type InputSynth struct {
	mu    sync.Mutex
	Calls []string
	Err   error

	MinX, MinY, MaxX, MaxY int32
}

func (s *InputSynth) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
	return s.Err
}

func (s *InputSynth) MoveRelative(dx, dy int32) error {
	return s.record(fmt.Sprintf("moveRelative(%d,%d)", dx, dy))
}

func (s *InputSynth) MoveAbsolute(x, y int32) error {
	return s.record(fmt.Sprintf("moveAbsolute(%d,%d)", x, y))
}

func (s *InputSynth) Button(which string, down bool) error {
	return s.record(fmt.Sprintf("button(%s,%v)", which, down))
}

func (s *InputSynth) Wheel(dx, dy int32) error {
	return s.record(fmt.Sprintf("wheel(%d,%d)", dx, dy))
}

func (s *InputSynth) KeyDown(vk uint16) error {
	return s.record(fmt.Sprintf("keyDown(0x%X)", vk))
}

func (s *InputSynth) KeyUp(vk uint16) error {
	return s.record(fmt.Sprintf("keyUp(0x%X)", vk))
}

func (s *InputSynth) CharToVK(ch rune) (uint16, bool, bool) {
	if ch >= 'a' && ch <= 'z' {
		return uint16(ch - 'a' + 'A'), false, true
	}
	if ch >= 'A' && ch <= 'Z' {
		return uint16(ch), true, true
	}
	return 0, false, false
}

func (s *InputSynth) WarpCursor(x, y int32) error {
	return s.record(fmt.Sprintf("warpCursor(%d,%d)", x, y))
}

func (s *InputSynth) InvokeSAS() error {
	return s.record("sas")
}

func (s *InputSynth) LockWorkstation() error {
	return s.record("lock")
}

func (s *InputSynth) VirtualDesktopBounds() (int32, int32, int32, int32, error) {
	if s.Err != nil {
		return 0, 0, 0, 0, s.Err
	}
	if s.MaxX == 0 && s.MaxY == 0 {
		return 0, 0, 1920, 1080, nil
	}
	return s.MinX, s.MinY, s.MaxX, s.MaxY, nil
}

var (
	_ platform.SessionDetector = (*SessionDetector)(nil)
	_ platform.Token           = (*Token)(nil)
	_ platform.Desktop         = (*Desktop)(nil)
	_ platform.Impersonator    = (*Impersonator)(nil)
	_ platform.DesktopAttacher = (*DesktopAttacher)(nil)
	_ platform.MonitorSource   = (*MonitorSource)(nil)
	_ platform.Capturer        = (*Capturer)(nil)
	_ platform.InputSynth      = (*InputSynth)(nil)
)
