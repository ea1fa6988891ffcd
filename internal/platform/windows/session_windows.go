//go:build windows

package windows

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/openctrol/agent/internal/platform"
)

var (
	user32   = syscall.NewLazyDLL("user32.dll")
	kernel32 = syscall.NewLazyDLL("kernel32.dll")
	wtsapi32 = syscall.NewLazyDLL("wtsapi32.dll")

	procWTSGetActiveConsole       = kernel32.NewProc("WTSGetActiveConsoleSessionId")
	procWTSQuerySessionInfo       = wtsapi32.NewProc("WTSQuerySessionInformationW")
	procWTSFreeMemory             = wtsapi32.NewProc("WTSFreeMemory")
	procOpenInputDesktop          = user32.NewProc("OpenInputDesktop")
	procCloseDesktop              = user32.NewProc("CloseDesktop")
	procGetUserObjectInformationW = user32.NewProc("GetUserObjectInformationW")
)

const (
	wtsCurrentServerHandle = 0
	wtsUserName            = 5

	desktopGenericAll = 0x10000000
	uoiName           = 2
)

// Detector queries WTS for the active console session and infers
// desktop mode from the name of the currently open input desktop.
type Detector struct{}

func NewSessionDetector() *Detector { return &Detector{} }

func (d *Detector) ActiveSession() (platform.SessionID, error) {
	r1, _, err := procWTSGetActiveConsole.Call()
	sid := uint32(r1)
	if sid == 0xFFFFFFFF {
		return platform.NoSession, fmt.Errorf("WTSGetActiveConsoleSessionId: %w", err)
	}
	return platform.SessionID(sid), nil
}

// DesktopModeFor classifies the desktop by name: Winlogon is either the
// login screen or the lock screen; Default is an unlocked interactive
// desktop; anything else is unknown. Disambiguating loginScreen from
// locked checks whether the session has a queryable username (an
// unauthenticated console has none yet).
func (d *Detector) DesktopModeFor(sid platform.SessionID) (platform.DesktopMode, error) {
	name, err := currentInputDesktopName()
	if err != nil {
		return platform.DesktopModeUnknown, err
	}

	switch name {
	case "Default":
		return platform.DesktopModeDesktop, nil
	case "Winlogon":
		if d.hasInteractiveUser(sid) {
			return platform.DesktopModeLocked, nil
		}
		return platform.DesktopModeLogin, nil
	default:
		return platform.DesktopModeUnknown, nil
	}
}

func (d *Detector) hasInteractiveUser(sid platform.SessionID) bool {
	var buf uintptr
	var bytesReturned uint32
	r1, _, _ := procWTSQuerySessionInfo.Call(
		wtsCurrentServerHandle,
		uintptr(sid),
		wtsUserName,
		uintptr(unsafe.Pointer(&buf)),
		uintptr(unsafe.Pointer(&bytesReturned)),
	)
	if r1 == 0 || buf == 0 {
		return false
	}
	defer procWTSFreeMemory.Call(buf)
	name := windows.UTF16PtrToString((*uint16)(unsafe.Pointer(buf)))
	return name != ""
}

func currentInputDesktopName() (string, error) {
	hDesk, _, err := procOpenInputDesktop.Call(0, 0, uintptr(desktopGenericAll))
	if hDesk == 0 {
		return "", fmt.Errorf("OpenInputDesktop: %w", err)
	}
	defer procCloseDesktop.Call(hDesk)

	var needed uint32
	procGetUserObjectInformationW.Call(hDesk, uintptr(uoiName), 0, 0, uintptr(unsafe.Pointer(&needed)))
	if needed == 0 {
		return "", nil
	}
	buf := make([]uint16, needed/2+1)
	r1, _, err := procGetUserObjectInformationW.Call(
		hDesk, uintptr(uoiName),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)),
	)
	if r1 == 0 {
		return "", fmt.Errorf("GetUserObjectInformationW: %w", err)
	}
	return windows.UTF16ToString(buf), nil
}
