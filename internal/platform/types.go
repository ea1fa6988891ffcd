// Package platform defines the OS primitives the remote-desktop core
// depends on: session enumeration, impersonation, input-desktop
// attachment, monitor enumeration, screen capture, and synthetic input.
// internal/platform/windows implements these against the real OS;
// internal/platform/fake stands in for tests.
package platform

import "image"

// SessionID identifies a Windows console session. NoSession is the
// sentinel returned when no interactive session is attached to the
// console.
type SessionID uint32

const NoSession SessionID = 0xFFFFFFFF

// DesktopMode classifies what's on the active input desktop.
type DesktopMode string

const (
	DesktopModeUnknown DesktopMode = "unknown"
	DesktopModeLogin   DesktopMode = "loginScreen"
	DesktopModeDesktop DesktopMode = "desktop"
	DesktopModeLocked  DesktopMode = "locked"
)

// SessionSnapshot is the immutable result of one session-monitor poll.
type SessionSnapshot struct {
	SessionID SessionID
	Mode      DesktopMode
}

// MonitorInfo describes one display, in the shape §3 of the
// specification names: stable id, friendly name, pixel size, top-left
// virtual-desktop position, primary flag.
type MonitorInfo struct {
	ID      string
	Name    string
	Width   int
	Height  int
	X       int
	Y       int
	Primary bool
}

// SessionDetector queries the host for the active console session and
// classifies the desktop currently attached to it.
type SessionDetector interface {
	ActiveSession() (SessionID, error)
	DesktopModeFor(SessionID) (DesktopMode, error)
}

// Token is an opaque impersonation-token handle.
type Token interface {
	Close() error
}

// Desktop is an opaque attached-desktop handle.
type Desktop interface {
	Close() error
	Name() string
}

// Impersonator duplicates a session's primary access token into an
// impersonation token and attaches/detaches it on the calling thread.
type Impersonator interface {
	ImpersonationToken(SessionID) (Token, error)
	SetThreadToken(Token) error
	ClearThreadToken() error
}

// DesktopAttacher opens the input desktop (or a named/secure fallback)
// and swaps it onto the calling thread.
type DesktopAttacher interface {
	OpenInputDesktop() (Desktop, error)
	OpenNamedDesktop(name string) (Desktop, error)
	OpenSecureDesktop() (Desktop, error)
	SetThreadDesktop(Desktop) (Desktop, error) // returns the previous desktop
}

// MonitorSource enumerates displays. The capture engine combines two
// independent sources and de-duplicates per the rule in §3.
type MonitorSource interface {
	Enumerate() ([]MonitorInfo, error)
}

// CaptureStrategy blits the given monitor's rectangle into an RGBA
// image. CaptureStrategies returns them in the engine's try-order.
type CaptureStrategy func(mon MonitorInfo) (*image.RGBA, error)

// Capturer exposes the ordered fallback strategies §4.C requires.
type Capturer interface {
	CaptureStrategies() []CaptureStrategy
}

// InputSynth synthesizes pointer/keyboard input, cursor warp, the
// Secure Attention Sequence, and workstation lock.
type InputSynth interface {
	MoveRelative(dx, dy int32) error
	MoveAbsolute(xNorm, yNorm int32) error
	Button(which string, down bool) error
	Wheel(dx, dy int32) error
	KeyDown(vk uint16) error
	KeyUp(vk uint16) error
	CharToVK(ch rune) (vk uint16, shift bool, ok bool)
	WarpCursor(xNorm, yNorm int32) error
	InvokeSAS() error
	LockWorkstation() error
	VirtualDesktopBounds() (minX, minY, maxX, maxY int32, err error)
}
