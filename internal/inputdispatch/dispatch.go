// Package inputdispatch translates pointer and keyboard events into
// platform.InputSynth calls, serialized behind a single lock and
// always emitted inside a desktop scope, so every SendInput call runs
// after the input desktop is attached.
package inputdispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/openctrol/agent/internal/desktopscope"
	"github.com/openctrol/agent/internal/logging"
	"github.com/openctrol/agent/internal/platform"
	"github.com/openctrol/agent/internal/sessionmonitor"
)

var log = logging.L("inputdispatch")

const (
	relativeClamp = 32767
	wheelMinClamp = -32768
	wheelMaxClamp = 32767
)

// Dispatcher serializes pointer/keyboard emission through a single
// lock and wraps every emission in a DesktopScope.
type Dispatcher struct {
	synth    platform.InputSynth
	scope    *desktopscope.Switcher
	sessions *sessionmonitor.Monitor

	mu      sync.Mutex
	mon     platform.MonitorInfo
	hasMon  bool
}

// New builds a Dispatcher over the given input synthesizer.
func New(synth platform.InputSynth, scope *desktopscope.Switcher, sessions *sessionmonitor.Monitor) *Dispatcher {
	return &Dispatcher{synth: synth, scope: scope, sessions: sessions}
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// withScope runs fn inside a desktop scope, serialized by the
// dispatcher lock.
func (d *Dispatcher) withScope(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	snapshot := d.sessions.Current()
	d.scope.RunScoped(context.Background(), &snapshot, func(context.Context) {
		err = fn()
	})
	return err
}

// MoveRelative emits a relative pointer move, clamped to the
// synthesizer's supported range.
func (d *Dispatcher) MoveRelative(dx, dy int32) error {
	dx = clamp(dx, -relativeClamp, relativeClamp)
	dy = clamp(dy, -relativeClamp, relativeClamp)
	return d.withScope(func() error { return d.synth.MoveRelative(dx, dy) })
}

// MoveAbsolute takes x,y normalized to [0, 65535] within the currently
// selected monitor's pixel box, maps that into the monitor's on-screen
// rectangle, then re-normalizes against the virtual desktop bounds
// before emitting an absolute+virtual-desktop SendInput move.
func (d *Dispatcher) MoveAbsolute(xNorm, yNorm int32) error {
	xNorm = clamp(xNorm, 0, 65535)
	yNorm = clamp(yNorm, 0, 65535)

	return d.withScope(func() error {
		mon, ok := d.currentMonitor()
		if !ok {
			return fmt.Errorf("inputdispatch: no monitor selected")
		}
		absX, absY, err := d.toVirtualDesktopNorm(mon, xNorm, yNorm)
		if err != nil {
			return err
		}
		return d.synth.MoveAbsolute(absX, absY)
	})
}

// toVirtualDesktopNorm maps a point normalized within mon's pixel box
// into the virtual-desktop-normalized [0,65535] space SendInput's
// MOUSEEVENTF_ABSOLUTE|MOUSEEVENTF_VIRTUALDESK flags expect. Caller
// must hold d.mu and be inside a desktop scope (VirtualDesktopBounds
// is a live syscall on Windows).
func (d *Dispatcher) toVirtualDesktopNorm(mon platform.MonitorInfo, xNorm, yNorm int32) (int32, int32, error) {
	minX, minY, maxX, maxY, err := d.synth.VirtualDesktopBounds()
	if err != nil {
		return 0, 0, fmt.Errorf("inputdispatch: virtual desktop bounds: %w", err)
	}
	deskW := maxX - minX
	deskH := maxY - minY
	if deskW <= 0 || deskH <= 0 {
		return 0, 0, fmt.Errorf("inputdispatch: degenerate virtual desktop bounds")
	}

	px := int32(mon.X) + xNorm*int32(mon.Width)/65536
	py := int32(mon.Y) + yNorm*int32(mon.Height)/65536

	absX := (px - minX) * 65535 / deskW
	absY := (py - minY) * 65535 / deskH
	return clamp(absX, 0, 65535), clamp(absY, 0, 65535), nil
}

// Button emits a button press or release.
func (d *Dispatcher) Button(which string, down bool) error {
	return d.withScope(func() error { return d.synth.Button(which, down) })
}

// Wheel emits one or two synthetic wheel events: a nonzero horizontal
// and vertical component are sent separately.
func (d *Dispatcher) Wheel(dx, dy int32) error {
	dx = clamp(dx, wheelMinClamp, wheelMaxClamp)
	dy = clamp(dy, wheelMinClamp, wheelMaxClamp)
	return d.withScope(func() error { return d.synth.Wheel(dx, dy) })
}

// KeyDown presses the requested modifiers in canonical order, then
// the main key. On failure it unwinds any modifiers already pressed,
// in reverse order, so no modifier is left stuck down.
func (d *Dispatcher) KeyDown(vk uint16, modifiers []string) error {
	return d.withScope(func() error {
		pressed, err := pressModifiers(d.synth, modifiers)
		if err != nil {
			releaseModifiers(d.synth, pressed)
			return err
		}
		if err := d.synth.KeyDown(vk); err != nil {
			releaseModifiers(d.synth, pressed)
			return err
		}
		return nil
	})
}

// KeyUp releases the main key, then the requested modifiers in
// reverse order.
func (d *Dispatcher) KeyUp(vk uint16, modifiers []string) error {
	return d.withScope(func() error {
		keyErr := d.synth.KeyUp(vk)
		modErr := releaseModifiersNamed(d.synth, modifiers)
		if keyErr != nil {
			return keyErr
		}
		return modErr
	})
}

// Text translates each rune to a VK + shift requirement via the
// current keyboard layout, then emits modifier-down (including Shift
// if required), vk-down/vk-up, modifier-up in reverse, per character.
func (d *Dispatcher) Text(s string, modifiers []string) error {
	return d.withScope(func() error {
		for _, ch := range s {
			if err := d.typeOneChar(ch, modifiers); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Dispatcher) typeOneChar(ch rune, modifiers []string) error {
	vk, needsShift, ok := d.synth.CharToVK(ch)
	if !ok {
		log.Debug("inputdispatch: no VK mapping for character, skipping", "char", ch)
		return nil
	}

	effective := modifiers
	if needsShift {
		has := false
		for _, m := range modifiers {
			if m == "shift" {
				has = true
			}
		}
		if !has {
			effective = append(append([]string{}, modifiers...), "shift")
		}
	}

	pressed, err := pressModifiers(d.synth, effective)
	if err != nil {
		releaseModifiers(d.synth, pressed)
		return err
	}

	keyErr := d.synth.KeyDown(vk)
	if keyErr == nil {
		keyErr = d.synth.KeyUp(vk)
	}

	releaseModifiers(d.synth, pressed)
	return keyErr
}

func pressModifiers(synth platform.InputSynth, modifiers []string) ([]string, error) {
	var pressed []string
	for _, name := range orderedModifiers(modifiers) {
		vk, ok := modifierVK(name)
		if !ok {
			continue
		}
		if err := synth.KeyDown(vk); err != nil {
			return pressed, fmt.Errorf("inputdispatch: press modifier %s: %w", name, err)
		}
		pressed = append(pressed, name)
	}
	return pressed, nil
}

// releaseModifiers releases the given already-pressed modifiers (in
// the order recorded by pressModifiers, i.e. reversed here) and logs
// — rather than returns — any failure, since it only ever runs as
// unwind-on-error cleanup.
func releaseModifiers(synth platform.InputSynth, pressed []string) {
	for i := len(pressed) - 1; i >= 0; i-- {
		vk, ok := modifierVK(pressed[i])
		if !ok {
			continue
		}
		if err := synth.KeyUp(vk); err != nil {
			log.Warn("inputdispatch: failed to release modifier during unwind", "modifier", pressed[i], "error", err)
		}
	}
}

// releaseModifiersNamed releases a requested modifier set in reverse
// canonical order, returning the first error encountered.
func releaseModifiersNamed(synth platform.InputSynth, modifiers []string) error {
	ordered := orderedModifiers(modifiers)
	var firstErr error
	for i := len(ordered) - 1; i >= 0; i-- {
		vk, ok := modifierVK(ordered[i])
		if !ok {
			continue
		}
		if err := synth.KeyUp(vk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetSelectedMonitor records the monitor moveAbsolute coordinates are
// currently expressed against. Intended to be wired as the capture
// engine's OnMonitorSelected callback.
func (d *Dispatcher) SetSelectedMonitor(mon platform.MonitorInfo) {
	d.mu.Lock()
	d.mon = mon
	d.hasMon = true
	d.mu.Unlock()

	if err := d.WarpToMonitorCenter(mon); err != nil {
		log.Warn("inputdispatch: failed to warp cursor to newly selected monitor", "monitor", mon.ID, "error", err)
	}
}

func (d *Dispatcher) currentMonitor() (platform.MonitorInfo, bool) {
	if !d.hasMon {
		return platform.MonitorInfo{}, false
	}
	return d.mon, true
}

// WarpToMonitorCenter warps the cursor to the center of mon, in
// virtual-desktop-normalized coordinates, so subsequent relative
// inputs land on the newly selected monitor.
func (d *Dispatcher) WarpToMonitorCenter(mon platform.MonitorInfo) error {
	return d.withScope(func() error {
		absX, absY, err := d.toVirtualDesktopNorm(mon, 32768, 32768)
		if err != nil {
			return err
		}
		return d.synth.WarpCursor(absX, absY)
	})
}

// InvokeSAS triggers the Secure Attention Sequence passthrough.
func (d *Dispatcher) InvokeSAS() error {
	return d.withScope(func() error { return d.synth.InvokeSAS() })
}

// LockWorkstation locks the workstation on demand.
func (d *Dispatcher) LockWorkstation() error {
	return d.withScope(func() error { return d.synth.LockWorkstation() })
}
