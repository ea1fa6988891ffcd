package audio

import "testing"

func TestFakeProviderState(t *testing.T) {
	p := NewFakeProvider([]Device{{ID: "a", Name: "Speakers"}, {ID: "b", Name: "Headset"}}, "a")

	state, err := p.State()
	if err != nil {
		t.Fatalf("State returned error: %v", err)
	}
	if state.ActiveDeviceID != "a" {
		t.Errorf("expected active device a, got %s", state.ActiveDeviceID)
	}
	if len(state.Devices) != 2 {
		t.Errorf("expected 2 devices, got %d", len(state.Devices))
	}
}

func TestFakeProviderSetDevice(t *testing.T) {
	p := NewFakeProvider([]Device{{ID: "a", Name: "Speakers"}, {ID: "b", Name: "Headset"}}, "a")

	if err := p.SetDevice("b"); err != nil {
		t.Fatalf("SetDevice returned error: %v", err)
	}
	state, _ := p.State()
	if state.ActiveDeviceID != "b" {
		t.Errorf("expected active device b, got %s", state.ActiveDeviceID)
	}
}

func TestFakeProviderSetDeviceUnknown(t *testing.T) {
	p := NewFakeProvider([]Device{{ID: "a", Name: "Speakers"}}, "a")

	if err := p.SetDevice("missing"); err != ErrDeviceNotFound {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestFakeProviderSetSessionRoutingReportsDivergence(t *testing.T) {
	p := NewFakeProvider([]Device{{ID: "a", Name: "Speakers"}, {ID: "b", Name: "Headset"}}, "a")

	applied, err := p.SetSessionRouting("sess-1", "b")
	if err != nil {
		t.Fatalf("SetSessionRouting returned error: %v", err)
	}
	if applied != "system-wide" {
		t.Errorf("expected applied scope system-wide, got %s", applied)
	}

	state, _ := p.State()
	if state.ActiveDeviceID != "b" {
		t.Errorf("expected SetSessionRouting to change the default device, got %s", state.ActiveDeviceID)
	}
}

func TestFakeProviderStateError(t *testing.T) {
	p := NewFakeProvider(nil, "")
	p.StateErr = ErrDeviceNotFound

	if _, err := p.State(); err != ErrDeviceNotFound {
		t.Errorf("expected propagated error, got %v", err)
	}
}
