//go:build windows

package windows

import (
	"fmt"
	"image"
	"sync"
	"syscall"
	"unsafe"

	"github.com/openctrol/agent/internal/platform"
)

var (
	gdi32 = syscall.NewLazyDLL("gdi32.dll")

	procGetDC                  = user32.NewProc("GetDC")
	procReleaseDC              = user32.NewProc("ReleaseDC")
	procCreateDCW              = gdi32.NewProc("CreateDCW")
	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
)

const (
	srcCopy      = 0x00CC0020
	captureBlt   = 0x40000000
	biRGB        = 0
	dibRGBColors = 0
)

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	BmiHeader bitmapInfoHeader
	BmiColors [1]uint32
}

var displayDeviceName = syscall.StringToUTF16Ptr("DISPLAY")

// blit owns one set of GDI handles sized to one monitor rectangle and
// does the BitBlt+GetDIBits dance against whatever source DC it is
// handed. Each of the three capture strategies owns one blit.
type blit struct {
	mu        sync.Mutex
	memDC     uintptr
	hBitmap   uintptr
	oldBitmap uintptr
	bi        bitmapInfo
	pixBuf    []byte
	w, h      int
}

func (b *blit) ensure(srcDC uintptr, w, h int) error {
	if b.memDC != 0 && b.w == w && b.h == h {
		return nil
	}
	b.release()

	memDC, _, _ := procCreateCompatibleDC.Call(srcDC)
	if memDC == 0 {
		return fmt.Errorf("CreateCompatibleDC failed")
	}
	hBitmap, _, _ := procCreateCompatibleBitmap.Call(srcDC, uintptr(w), uintptr(h))
	if hBitmap == 0 {
		procDeleteDC.Call(memDC)
		return fmt.Errorf("CreateCompatibleBitmap failed")
	}
	oldBitmap, _, _ := procSelectObject.Call(memDC, hBitmap)
	if oldBitmap == 0 {
		procDeleteObject.Call(hBitmap)
		procDeleteDC.Call(memDC)
		return fmt.Errorf("SelectObject failed")
	}

	b.memDC, b.hBitmap, b.oldBitmap = memDC, hBitmap, oldBitmap
	b.w, b.h = w, h
	b.pixBuf = make([]byte, w*h*4)
	b.bi = bitmapInfo{BmiHeader: bitmapInfoHeader{
		BiSize:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		BiWidth:       int32(w),
		BiHeight:      -int32(h),
		BiPlanes:      1,
		BiBitCount:    32,
		BiCompression: biRGB,
	}}
	return nil
}

func (b *blit) release() {
	if b.oldBitmap != 0 && b.memDC != 0 {
		procSelectObject.Call(b.memDC, b.oldBitmap)
	}
	if b.hBitmap != 0 {
		procDeleteObject.Call(b.hBitmap)
	}
	if b.memDC != 0 {
		procDeleteDC.Call(b.memDC)
	}
	b.memDC, b.hBitmap, b.oldBitmap = 0, 0, 0
}

func (b *blit) copy(srcDC uintptr, srcX, srcY, w, h int) (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensure(srcDC, w, h); err != nil {
		return nil, err
	}

	ret, _, _ := procBitBlt.Call(b.memDC, 0, 0, uintptr(w), uintptr(h),
		srcDC, uintptr(srcX), uintptr(srcY), srcCopy|captureBlt)
	if ret == 0 {
		ret, _, _ = procBitBlt.Call(b.memDC, 0, 0, uintptr(w), uintptr(h),
			srcDC, uintptr(srcX), uintptr(srcY), srcCopy)
		if ret == 0 {
			return nil, fmt.Errorf("BitBlt failed")
		}
	}

	ret, _, _ = procGetDIBits.Call(b.memDC, b.hBitmap, 0, uintptr(h),
		uintptr(unsafe.Pointer(&b.pixBuf[0])), uintptr(unsafe.Pointer(&b.bi)), dibRGBColors)
	if ret == 0 {
		return nil, fmt.Errorf("GetDIBits failed")
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bgraToRGBA(b.pixBuf, img.Pix, w*h)
	return img, nil
}

func bgraToRGBA(bgra, rgba []byte, pixels int) {
	for i := 0; i < pixels; i++ {
		o := i * 4
		rgba[o+0] = bgra[o+2]
		rgba[o+1] = bgra[o+1]
		rgba[o+2] = bgra[o+0]
		rgba[o+3] = 255
	}
}

// Capturer implements three ordered fallback strategies: a window-DC
// blit from the desktop window, a second window-DC blit through its own
// set of GDI handles, and a direct blit from the physical display
// surface (CreateDC("DISPLAY")), which also works on the
// secure/Winlogon desktop where GetDC(0) fails. The second strategy
// calls GetDC(0) again, just as the first does; it does not reuse a
// window DC held over from before the desktop switch.
type Capturer struct {
	windowBlit  blit
	switchBlit  blit
	displayBlit blit
}

func NewCapturer() *Capturer { return &Capturer{} }

func (c *Capturer) CaptureStrategies() []platform.CaptureStrategy {
	return []platform.CaptureStrategy{
		c.captureWindowDC,
		c.captureAfterSwitch,
		c.captureDisplaySurface,
	}
}

func (c *Capturer) captureWindowDC(mon platform.MonitorInfo) (*image.RGBA, error) {
	hdc, _, _ := procGetDC.Call(0)
	if hdc == 0 {
		return nil, fmt.Errorf("GetDC(desktop window) failed")
	}
	defer procReleaseDC.Call(0, hdc)
	return c.windowBlit.copy(hdc, mon.X, mon.Y, mon.Width, mon.Height)
}

func (c *Capturer) captureAfterSwitch(mon platform.MonitorInfo) (*image.RGBA, error) {
	hdc, _, _ := procGetDC.Call(0)
	if hdc == 0 {
		return nil, fmt.Errorf("GetDC(post-switch) failed")
	}
	defer procReleaseDC.Call(0, hdc)
	return c.switchBlit.copy(hdc, mon.X, mon.Y, mon.Width, mon.Height)
}

func (c *Capturer) captureDisplaySurface(mon platform.MonitorInfo) (*image.RGBA, error) {
	hdc, _, _ := procCreateDCW.Call(uintptr(unsafe.Pointer(displayDeviceName)), 0, 0, 0)
	if hdc == 0 {
		return nil, fmt.Errorf("CreateDCW(DISPLAY) failed")
	}
	defer procDeleteDC.Call(hdc)
	return c.displayBlit.copy(hdc, mon.X, mon.Y, mon.Width, mon.Height)
}
