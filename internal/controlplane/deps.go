package controlplane

import (
	"time"

	"github.com/openctrol/agent/internal/broker"
	"github.com/openctrol/agent/internal/capture"
	"github.com/openctrol/agent/internal/platform"
)

// Broker is the subset of *broker.Broker the control surface depends
// on, narrowed to an interface so handlers can be exercised against a
// test double without a real purge loop running.
type Broker interface {
	IsCallerAllowed(callerID string) bool
	AllowAttempt(callerID string) error
	IssueToken(callerID string, ttl time.Duration) (broker.SessionToken, error)
	ValidateToken(value string) (broker.SessionToken, error)
	StartSession(callerID string, ttl time.Duration) (*broker.DesktopSession, error)
	EndSession(sessionID string) bool
	Session(sessionID string) (*broker.DesktopSession, bool)
	ActiveSessionCount() int
}

// CaptureEngine is the subset of *capture.Engine the control surface
// depends on.
type CaptureEngine interface {
	Status() capture.Status
	ListMonitors() []platform.MonitorInfo
	SelectMonitor(id string) error
	Subscribe(sink capture.FrameSink)
	Unsubscribe(sink capture.FrameSink)
}

// Dispatcher is the subset of *inputdispatch.Dispatcher the control
// surface depends on.
type Dispatcher interface {
	MoveRelative(dx, dy int32) error
	MoveAbsolute(xNorm, yNorm int32) error
	Button(which string, down bool) error
	Wheel(dx, dy int32) error
	KeyDown(vk uint16, modifiers []string) error
	KeyUp(vk uint16, modifiers []string) error
	Text(s string, modifiers []string) error
	InvokeSAS() error
	LockWorkstation() error
}
