// Package audio adapts the Windows Core Audio MMDevice API to the
// control surface's audio pass-through endpoints. It is a thin
// collaborator, not part of the remote-desktop core: it owns no
// session state and never affects the capture or input paths.
package audio

import (
	"fmt"

	"github.com/openctrol/agent/internal/logging"
)

var log = logging.L("audio")

// Device is one enumerable playback endpoint.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// State is the current default device plus the full device list.
type State struct {
	ActiveDeviceID string   `json:"activeDeviceId"`
	Devices        []Device `json:"devices"`
}

// Provider is implemented by WindowsProvider; declared here so tests
// can substitute a fake without touching the COM adapter.
type Provider interface {
	State() (State, error)
	SetDevice(deviceID string) error
	SetSessionRouting(sessionID, deviceID string) (applied string, err error)
}

// ErrDeviceNotFound is returned when a requested device id does not
// appear in the current enumeration.
var ErrDeviceNotFound = fmt.Errorf("audio: device not found")
