package controlplane

import (
	"sync"

	"github.com/openctrol/agent/internal/capture"
	"github.com/openctrol/agent/internal/platform"
)

// fakeEngine is a minimal CaptureEngine double recording dispatched
// calls, modeled on platform/fake's preference for plain recording
// structs over a mocking library.
type fakeEngine struct {
	mu        sync.Mutex
	status    capture.Status
	monitors  []platform.MonitorInfo
	selected  []string
	selectErr error
	sinks     []capture.FrameSink
}

func (e *fakeEngine) Status() capture.Status { return e.status }

func (e *fakeEngine) ListMonitors() []platform.MonitorInfo { return e.monitors }

func (e *fakeEngine) SelectMonitor(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = append(e.selected, id)
	return e.selectErr
}

func (e *fakeEngine) Subscribe(sink capture.FrameSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

func (e *fakeEngine) Unsubscribe(sink capture.FrameSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.sinks {
		if s == sink {
			e.sinks = append(e.sinks[:i], e.sinks[i+1:]...)
			return
		}
	}
}

var _ CaptureEngine = (*fakeEngine)(nil)

// fakeDispatcher records every input call instead of touching any OS
// primitive.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []string
	lastErr error
}

func (d *fakeDispatcher) record(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, name)
	return d.lastErr
}

func (d *fakeDispatcher) MoveRelative(dx, dy int32) error         { return d.record("moveRelative") }
func (d *fakeDispatcher) MoveAbsolute(x, y int32) error           { return d.record("moveAbsolute") }
func (d *fakeDispatcher) Button(which string, down bool) error    { return d.record("button") }
func (d *fakeDispatcher) Wheel(dx, dy int32) error                { return d.record("wheel") }
func (d *fakeDispatcher) KeyDown(vk uint16, mods []string) error  { return d.record("keyDown") }
func (d *fakeDispatcher) KeyUp(vk uint16, mods []string) error    { return d.record("keyUp") }
func (d *fakeDispatcher) Text(s string, mods []string) error      { return d.record("text") }
func (d *fakeDispatcher) InvokeSAS() error                        { return d.record("sas") }
func (d *fakeDispatcher) LockWorkstation() error                  { return d.record("lock") }

var _ Dispatcher = (*fakeDispatcher)(nil)

// fakePower records restart/shutdown calls.
type fakePower struct {
	mu             sync.Mutex
	restartCalled  bool
	shutdownCalled bool
	err            error
}

func (p *fakePower) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restartCalled = true
	return p.err
}

func (p *fakePower) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownCalled = true
	return p.err
}

var _ PowerExecutor = (*fakePower)(nil)
