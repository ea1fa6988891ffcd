//go:build windows

package windows

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/openctrol/agent/internal/platform"
)

var (
	procSendInput        = user32.NewProc("SendInput")
	procMapVirtualKeyW   = user32.NewProc("MapVirtualKeyW")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
	procVkKeyScanW       = user32.NewProc("VkKeyScanW")
	procLockWorkStation  = user32.NewProc("LockWorkStation")

	sasDLL  = syscall.NewLazyDLL("sas.dll")
	sendSAS = sasDLL.NewProc("SendSAS")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseEventFMove        = 0x0001
	mouseEventFLeftDown    = 0x0002
	mouseEventFLeftUp      = 0x0004
	mouseEventFRightDown   = 0x0008
	mouseEventFRightUp     = 0x0010
	mouseEventFMiddleDown  = 0x0020
	mouseEventFMiddleUp    = 0x0040
	mouseEventFWheel       = 0x0800
	mouseEventFHWheel      = 0x1000
	mouseEventFAbsolute    = 0x8000
	mouseEventFVirtualDesk = 0x4000

	smXVirtualScreen  = 76
	smYVirtualScreen  = 77
	smCXVirtualScreen = 78
	smCYVirtualScreen = 79

	keyEventFKeyUp       = 0x0002
	keyEventFScanCode    = 0x0008
	keyEventFExtendedKey = 0x0001

	mapVKToVSC = 0
)

type mouseInput struct {
	dx, dy      int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type input struct {
	inputType uint32
	padding   [4]byte
	mi        mouseInput
}

// InputSynth drives SendInput for pointer and keyboard events and the
// LockWorkStation/SendSAS APIs for the two privileged operations the
// input dispatcher exposes alongside ordinary events.
type InputSynth struct{}

func NewInputSynth() *InputSynth { return &InputSynth{} }

func sendRawInput(inp *input) error {
	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(inp)), unsafe.Sizeof(*inp))
	if ret == 0 {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

func (s *InputSynth) MoveRelative(dx, dy int32) error {
	inp := input{inputType: inputMouse}
	inp.mi.dx = dx
	inp.mi.dy = dy
	inp.mi.dwFlags = mouseEventFMove
	return sendRawInput(&inp)
}

// MoveAbsolute takes coordinates already normalized to the 0–65535
// space MOUSEEVENTF_ABSOLUTE|MOUSEEVENTF_VIRTUALDESK expects; the
// dispatcher does the virtual-desktop-bounds mapping before calling in.
func (s *InputSynth) MoveAbsolute(xNorm, yNorm int32) error {
	inp := input{inputType: inputMouse}
	inp.mi.dx = xNorm
	inp.mi.dy = yNorm
	inp.mi.dwFlags = mouseEventFMove | mouseEventFAbsolute | mouseEventFVirtualDesk
	return sendRawInput(&inp)
}

func (s *InputSynth) Button(which string, down bool) error {
	var flags uint32
	switch which {
	case "left":
		if down {
			flags = mouseEventFLeftDown
		} else {
			flags = mouseEventFLeftUp
		}
	case "right":
		if down {
			flags = mouseEventFRightDown
		} else {
			flags = mouseEventFRightUp
		}
	case "middle":
		if down {
			flags = mouseEventFMiddleDown
		} else {
			flags = mouseEventFMiddleUp
		}
	default:
		return fmt.Errorf("platform/windows: unknown button %q", which)
	}

	inp := input{inputType: inputMouse}
	inp.mi.dwFlags = flags
	return sendRawInput(&inp)
}

func (s *InputSynth) Wheel(dx, dy int32) error {
	if dy != 0 {
		inp := input{inputType: inputMouse}
		inp.mi.dwFlags = mouseEventFWheel
		inp.mi.mouseData = uint32(dy)
		if err := sendRawInput(&inp); err != nil {
			return err
		}
	}
	if dx != 0 {
		inp := input{inputType: inputMouse}
		inp.mi.dwFlags = mouseEventFHWheel
		inp.mi.mouseData = uint32(dx)
		if err := sendRawInput(&inp); err != nil {
			return err
		}
	}
	return nil
}

func vkToScanCode(vk uint16) uint16 {
	sc, _, _ := procMapVirtualKeyW.Call(uintptr(vk), mapVKToVSC)
	return uint16(sc)
}

func isExtendedKey(vk uint16) bool {
	switch vk {
	case 0x21, 0x22, 0x23, 0x24,
		0x25, 0x26, 0x27, 0x28,
		0x2D, 0x2E,
		0x5B, 0x5C,
		0x6F, 0x90, 0x91, 0x2C:
		return true
	}
	return false
}

func (s *InputSynth) keyEvent(vk uint16, up bool) error {
	inp := input{inputType: inputKeyboard}
	ki := (*keybdInput)(unsafe.Pointer(&inp.mi))
	ki.wVk = vk
	ki.wScan = vkToScanCode(vk)
	if up {
		ki.dwFlags = keyEventFKeyUp
	}
	if isExtendedKey(vk) {
		ki.dwFlags |= keyEventFExtendedKey
	}
	return sendRawInput(&inp)
}

func (s *InputSynth) KeyDown(vk uint16) error { return s.keyEvent(vk, false) }
func (s *InputSynth) KeyUp(vk uint16) error   { return s.keyEvent(vk, true) }

// CharToVK resolves a rune to a virtual-key code and the shift state
// needed to type it, via VkKeyScanW: the low byte of the result is the
// VK, bit 0 of the high byte says whether Shift must be held.
func (s *InputSynth) CharToVK(ch rune) (vk uint16, shift bool, ok bool) {
	if ch > 0xFFFF {
		return 0, false, false
	}
	ret, _, _ := procVkKeyScanW.Call(uintptr(uint16(ch)))
	if int16(ret) == -1 {
		return 0, false, false
	}
	vk = uint16(ret & 0xFF)
	shiftState := uint8(ret >> 8)
	return vk, shiftState&0x01 != 0, true
}

func (s *InputSynth) WarpCursor(xNorm, yNorm int32) error {
	return s.MoveAbsolute(xNorm, yNorm)
}

func (s *InputSynth) VirtualDesktopBounds() (minX, minY, maxX, maxY int32, err error) {
	vx, _, _ := procGetSystemMetrics.Call(smXVirtualScreen)
	vy, _, _ := procGetSystemMetrics.Call(smYVirtualScreen)
	cw, _, _ := procGetSystemMetrics.Call(smCXVirtualScreen)
	ch, _, _ := procGetSystemMetrics.Call(smCYVirtualScreen)
	if int32(cw) <= 0 || int32(ch) <= 0 {
		return 0, 0, 0, 0, fmt.Errorf("GetSystemMetrics: virtual screen has zero extent")
	}
	return int32(vx), int32(vy), int32(vx) + int32(cw), int32(vy) + int32(ch), nil
}

// InvokeSAS calls SendSAS(FALSE), the service-mode path: most reliable
// from an SCM-registered process, which is how this agent is expected
// to run. sas.dll is only present from Windows 8 onward.
func (s *InputSynth) InvokeSAS() error {
	if err := sasDLL.Load(); err != nil {
		return fmt.Errorf("sas.dll not available: %w", err)
	}
	if err := sendSAS.Find(); err != nil {
		return fmt.Errorf("SendSAS proc not found: %w", err)
	}
	sendSAS.Call(0)
	return nil
}

func (s *InputSynth) LockWorkstation() error {
	ret, _, err := procLockWorkStation.Call()
	if ret == 0 {
		return fmt.Errorf("LockWorkStation: %w", err)
	}
	return nil
}

var _ platform.InputSynth = (*InputSynth)(nil)
