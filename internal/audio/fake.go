package audio

import "sync"

// FakeProvider is an in-memory Provider double for tests on platforms
// without the Windows Core Audio stack.
type FakeProvider struct {
	mu       sync.Mutex
	devices  []Device
	activeID string
	StateErr error
	SetErr   error
}

func NewFakeProvider(devices []Device, activeID string) *FakeProvider {
	return &FakeProvider{devices: devices, activeID: activeID}
}

func (p *FakeProvider) State() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StateErr != nil {
		return State{}, p.StateErr
	}
	return State{ActiveDeviceID: p.activeID, Devices: append([]Device(nil), p.devices...)}, nil
}

func (p *FakeProvider) SetDevice(deviceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetErr != nil {
		return p.SetErr
	}
	for _, d := range p.devices {
		if d.ID == deviceID {
			p.activeID = deviceID
			return nil
		}
	}
	return ErrDeviceNotFound
}

// SetSessionRouting mirrors WindowsProvider's behavior: Windows has no
// per-session routing API, so every call falls back to the system-wide
// default device and reports that in "applied".
func (p *FakeProvider) SetSessionRouting(sessionID, deviceID string) (string, error) {
	if err := p.SetDevice(deviceID); err != nil {
		return "", err
	}
	return "system-wide", nil
}

var _ Provider = (*FakeProvider)(nil)
