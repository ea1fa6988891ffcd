//go:build windows

package windows

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/openctrol/agent/internal/platform"
)

// token wraps a duplicated impersonation token.
type token struct {
	h windows.Token
}

func (t *token) Close() error {
	return t.h.Close()
}

// Impersonator duplicates the primary token of a session's active
// process into an impersonation-level token the calling thread can
// wear, following the duplication steps in spawner_windows.go's
// CreateProcessAsUser path but stopping short of spawning a process:
// here the token is attached directly to the current OS thread.
type Impersonator struct{}

func NewImpersonator() *Impersonator { return &Impersonator{} }

func (i *Impersonator) ImpersonationToken(sid platform.SessionID) (platform.Token, error) {
	var userToken windows.Token
	if !windows.WTSQueryUserToken(uint32(sid), &userToken) {
		return nil, fmt.Errorf("WTSQueryUserToken(session=%d): %w", sid, windows.GetLastError())
	}
	defer userToken.Close()

	var impToken windows.Token
	err := windows.DuplicateTokenEx(
		userToken,
		windows.TOKEN_QUERY|windows.TOKEN_IMPERSONATE|windows.TOKEN_DUPLICATE,
		nil,
		windows.SecurityImpersonation,
		windows.TokenImpersonation,
		&impToken,
	)
	if err != nil {
		return nil, fmt.Errorf("DuplicateTokenEx(session=%d): %w", sid, err)
	}

	return &token{h: impToken}, nil
}

func (i *Impersonator) SetThreadToken(t platform.Token) error {
	tok, ok := t.(*token)
	if !ok {
		return fmt.Errorf("platform/windows: unexpected token type %T", t)
	}
	return windows.ImpersonateLoggedOnUser(tok.h)
}

func (i *Impersonator) ClearThreadToken() error {
	return windows.RevertToSelf()
}

// desktop wraps an opened HDESK.
type desktop struct {
	h    uintptr
	name string
}

func (d *desktop) Close() error {
	if d.h == 0 {
		return nil
	}
	procCloseDesktop.Call(d.h)
	return nil
}

func (d *desktop) Name() string { return d.name }

const (
	desktopSwitch       = 0x0100
	desktopReadObjects  = 0x0001
	desktopWriteObjects = 0x0080
)

// DesktopAttacher opens the input desktop (falling back to a named
// interactive desktop, then the secure desktop) and swaps it onto the
// calling thread, per the acquisition order in §4.B.
type DesktopAttacher struct{}

func NewDesktopAttacher() *DesktopAttacher { return &DesktopAttacher{} }

func (a *DesktopAttacher) OpenInputDesktop() (platform.Desktop, error) {
	access := uintptr(desktopSwitch | desktopReadObjects | desktopWriteObjects)
	h, _, err := procOpenInputDesktop.Call(0, 0, access)
	if h == 0 {
		return nil, fmt.Errorf("OpenInputDesktop: %w", err)
	}
	return &desktop{h: h, name: "input"}, nil
}

func (a *DesktopAttacher) OpenNamedDesktop(name string) (platform.Desktop, error) {
	procOpenDesktop := user32.NewProc("OpenDesktopW")
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	access := uintptr(desktopSwitch | desktopReadObjects | desktopWriteObjects)
	h, _, callErr := procOpenDesktop.Call(uintptr(unsafe.Pointer(namePtr)), 0, 0, access)
	if h == 0 {
		return nil, fmt.Errorf("OpenDesktopW(%s): %w", name, callErr)
	}
	return &desktop{h: h, name: name}, nil
}

func (a *DesktopAttacher) OpenSecureDesktop() (platform.Desktop, error) {
	return a.OpenNamedDesktop("Winlogon")
}

func (a *DesktopAttacher) SetThreadDesktop(d platform.Desktop) (platform.Desktop, error) {
	procGetThreadDesktop := user32.NewProc("GetThreadDesktop")
	procSetThreadDesktop := user32.NewProc("SetThreadDesktop")
	procGetCurrentThreadId := kernel32.NewProc("GetCurrentThreadId")

	tid, _, _ := procGetCurrentThreadId.Call()
	prevH, _, _ := procGetThreadDesktop.Call(tid)

	dk, ok := d.(*desktop)
	if !ok {
		return nil, fmt.Errorf("platform/windows: unexpected desktop type %T", d)
	}

	r1, _, err := procSetThreadDesktop.Call(dk.h)
	if r1 == 0 {
		return nil, fmt.Errorf("SetThreadDesktop: %w", err)
	}

	return &desktop{h: prevH, name: "previous"}, nil
}
