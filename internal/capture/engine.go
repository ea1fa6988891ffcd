// Package capture owns the screen-capture loop: monitor enumeration
// and selection, the fallback blit strategies, JPEG encoding, and
// frame fan-out to subscribers.
package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openctrol/agent/internal/desktopscope"
	"github.com/openctrol/agent/internal/logging"
	"github.com/openctrol/agent/internal/platform"
	"github.com/openctrol/agent/internal/sessionmonitor"
)

var log = logging.L("capture")

const (
	jpegQuality          = 75
	failureThreshold     = 5
	stopJoinTimeout      = 5 * time.Second
	fallbackFrameWidth   = 640
	fallbackFrameHeight  = 480
)

// RemoteFrame is one published, read-only, encoded frame.
type RemoteFrame struct {
	Sequence  uint64
	Timestamp time.Time
	Width     int
	Height    int
	Payload   []byte
	Format    string
}

// FrameSink receives published frames. Implementations must not block.
type FrameSink interface {
	PublishFrame(RemoteFrame)
}

// Status is the snapshot status() returns.
type Status struct {
	Running     bool
	LastFrameAt time.Time
	Mode        string
	Degraded    bool
	Reason      string
}

// captureContext owns the fixed-size bitmap state for one (w,h); it is
// re-created whenever the selected monitor's dimensions change.
type captureContext struct {
	w, h int
}

func (c *captureContext) matches(w, h int) bool { return c != nil && c.w == w && c.h == h }

// Engine runs the capture loop described in §4.C.
type Engine struct {
	monitorsA platform.MonitorSource
	monitorsB platform.MonitorSource
	capturer  platform.Capturer
	scope     *desktopscope.Switcher
	sessions  *sessionmonitor.Monitor

	frameInterval func() time.Duration

	// OnMonitorSelected, if set, is invoked after selectMonitor commits
	// a new selection so the input dispatcher can warp the cursor.
	OnMonitorSelected func(platform.MonitorInfo)

	mu          sync.Mutex
	monitors    []platform.MonitorInfo
	selected    int // index into monitors, -1 if none
	ctxState    *captureContext
	running     bool
	degraded    bool
	degradedWhy string
	lastFrameAt time.Time
	failures    int
	sequence    uint64

	subMu sync.Mutex
	subs  map[FrameSink]struct{}

	cancel context.CancelFunc
	doneCh chan struct{}
}

// New builds an Engine. frameInterval is called once per loop
// iteration so it can react to live configuration changes.
func New(monitorsA, monitorsB platform.MonitorSource, capturer platform.Capturer, scope *desktopscope.Switcher, sessions *sessionmonitor.Monitor, frameInterval func() time.Duration) *Engine {
	return &Engine{
		monitorsA:     monitorsA,
		monitorsB:     monitorsB,
		capturer:      capturer,
		scope:         scope,
		sessions:      sessions,
		frameInterval: frameInterval,
		selected:      -1,
		subs:          make(map[FrameSink]struct{}),
	}
}

// Start spawns the capture loop goroutine. Calling Start twice is a
// no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.doneCh = make(chan struct{})
	e.running = true
	e.mu.Unlock()

	go e.run(ctx)
}

// Stop signals cancellation and waits up to 5s for the loop to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	done := e.doneCh
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		log.Warn("capture engine: stop timed out waiting for loop to exit")
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Status returns a consistent snapshot under a single lock.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := string(e.sessions.Current().Mode)
	if e.degraded {
		mode += "_degraded"
	}
	return Status{
		Running:     e.running,
		LastFrameAt: e.lastFrameAt,
		Mode:        mode,
		Degraded:    e.degraded,
		Reason:      e.degradedWhy,
	}
}

// ListMonitors runs inside a DesktopScope, enumerates via both
// sources, merges and re-sorts, and caches the result for
// SelectMonitor to validate against.
func (e *Engine) ListMonitors() []platform.MonitorInfo {
	var merged []platform.MonitorInfo
	snapshot := e.sessions.Current()
	e.scope.RunScoped(context.Background(), &snapshot, func(context.Context) {
		a, errA := e.monitorsA.Enumerate()
		if errA != nil {
			log.Warn("capture: primary monitor source failed", "error", errA)
		}
		b, errB := e.monitorsB.Enumerate()
		if errB != nil {
			log.Warn("capture: secondary monitor source failed", "error", errB)
		}
		merged = mergeMonitors(a, b)
	})

	e.mu.Lock()
	e.monitors = merged
	if e.selected >= len(merged) {
		e.selected = -1
	}
	e.mu.Unlock()

	return merged
}

// SelectMonitor validates id against the latest enumeration, updates
// the selection atomically, and notifies OnMonitorSelected so the
// input dispatcher can warp the cursor to the new monitor's center.
func (e *Engine) SelectMonitor(id string) error {
	e.mu.Lock()
	idx := -1
	for i, m := range e.monitors {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		e.mu.Unlock()
		return fmt.Errorf("capture: unknown monitor id %q", id)
	}
	e.selected = idx
	mon := e.monitors[idx]
	e.mu.Unlock()

	if e.OnMonitorSelected != nil {
		e.OnMonitorSelected(mon)
	}
	return nil
}

func (e *Engine) selectedMonitor() (platform.MonitorInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected < 0 || e.selected >= len(e.monitors) {
		return platform.MonitorInfo{}, false
	}
	return e.monitors[e.selected], true
}

// Subscribe registers a frame sink. Unsubscribe removes it.
func (e *Engine) Subscribe(sink FrameSink) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs[sink] = struct{}{}
}

func (e *Engine) Unsubscribe(sink FrameSink) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	delete(e.subs, sink)
}

func (e *Engine) publish(frame RemoteFrame) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for sink := range e.subs {
		sink.PublishFrame(frame)
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	for {
		interval := e.frameInterval()
		frameStart := time.Now()

		if err := ctx.Err(); err != nil {
			return
		}

		e.iterate(ctx)

		elapsed := time.Since(frameStart)
		remaining := interval - elapsed
		if remaining <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}

func (e *Engine) iterate(ctx context.Context) {
	mon, ok := e.selectedMonitor()
	if !ok {
		e.recordFailure()
		return
	}

	e.mu.Lock()
	if !e.ctxState.matches(mon.Width, mon.Height) {
		e.ctxState = &captureContext{w: mon.Width, h: mon.Height}
	}
	e.mu.Unlock()

	snapshot := e.sessions.Current()
	var img *image.RGBA
	var captureErr error

	e.scope.RunScoped(ctx, &snapshot, func(context.Context) {
		for _, strategy := range e.capturer.CaptureStrategies() {
			img, captureErr = strategy(mon)
			if captureErr == nil {
				return
			}
		}
	})

	if captureErr != nil || img == nil {
		log.Debug("capture: all strategies failed", "error", captureErr)
		e.recordFailure()
		return
	}

	buf := getBuffer()
	buf.Grow(estimateBufSize(mon.Width, mon.Height))
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		putBuffer(buf)
		log.Debug("capture: jpeg encode failed", "error", err)
		e.recordFailure()
		return
	}

	payload := make([]byte, buf.Len())
	copy(payload, buf.Bytes())
	putBuffer(buf)

	seq := atomic.AddUint64(&e.sequence, 1)

	e.mu.Lock()
	e.lastFrameAt = time.Now()
	e.degraded = false
	e.degradedWhy = ""
	e.failures = 0
	e.mu.Unlock()

	e.publish(RemoteFrame{
		Sequence:  seq,
		Timestamp: time.Now(),
		Width:     mon.Width,
		Height:    mon.Height,
		Payload:   payload,
		Format:    "jpeg",
	})
}

func (e *Engine) recordFailure() {
	e.mu.Lock()
	e.failures++
	trip := e.failures >= failureThreshold
	if trip {
		e.failures = 0
		e.degraded = true
		e.degradedWhy = "consecutive capture failures"
	}
	e.mu.Unlock()

	if !trip {
		return
	}

	seq := atomic.AddUint64(&e.sequence, 1)
	e.publish(RemoteFrame{
		Sequence:  seq,
		Timestamp: time.Now(),
		Width:     fallbackFrameWidth,
		Height:    fallbackFrameHeight,
		Payload:   blackJPEG(),
		Format:    "jpeg",
	})
}

var (
	blackJPEGOnce sync.Once
	blackJPEGData []byte
)

// blackJPEG lazily encodes a fixed-size black frame once and reuses
// the bytes for every subsequent degraded-mode publish.
func blackJPEG() []byte {
	blackJPEGOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, fallbackFrameWidth, fallbackFrameHeight))
		fill(img, color.RGBA{A: 255})
		b, err := encodeJPEGBytes(img)
		if err != nil {
			log.Warn("capture: failed to encode fallback frame", "error", err)
			return
		}
		blackJPEGData = b
	})
	return blackJPEGData
}

func fill(img *image.RGBA, c color.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = 255
	}
}

func encodeJPEGBytes(img *image.RGBA) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
