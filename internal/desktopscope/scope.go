// Package desktopscope attaches the calling OS thread to the active
// interactive session's input desktop, impersonating that session's
// user for the duration of a scoped call, via the same
// token-duplication chain used to launch a helper process in a target
// session, applied in-thread instead of to a child process.
package desktopscope

import (
	"context"
	"runtime"

	"github.com/openctrol/agent/internal/logging"
	"github.com/openctrol/agent/internal/platform"
)

var log = logging.L("desktopscope")

type contextKey struct{}

// scope is the marker value stored in the context to flag that a
// RunScoped call is already active; the acquired token and desktop
// handles are held in acquiredScope, not here.
type scope struct{}

// Switcher runs work with the calling thread attached to the active
// desktop of the active interactive session, following a fixed
// acquisition order. Re-entry is tracked via the context passed to
// work: a nested RunScoped call carrying a context already marked by
// an outer call returns the existing scope without reopening.
type Switcher struct {
	detector     platform.SessionDetector
	impersonator platform.Impersonator
	attacher     platform.DesktopAttacher
}

// New builds a Switcher over the given platform primitives.
func New(detector platform.SessionDetector, impersonator platform.Impersonator, attacher platform.DesktopAttacher) *Switcher {
	return &Switcher{
		detector:     detector,
		impersonator: impersonator,
		attacher:     attacher,
	}
}

// RunScoped runs work with the calling goroutine's OS thread attached
// to the active input desktop, impersonating the active session's
// user. If snapshot is nil a fresh session snapshot is queried. Every
// acquisition failure is logged as a warning and work still runs —
// the contract promises discipline on success, not guaranteed success.
func (s *Switcher) RunScoped(ctx context.Context, snapshot *platform.SessionSnapshot, work func(context.Context)) {
	if ctx.Value(contextKey{}) != nil {
		work(ctx)
		return
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sc := s.acquire(snapshot)
	defer s.release(sc)

	work(context.WithValue(ctx, contextKey{}, &scope{}))
}

// acquiredScope holds the handles one RunScoped call opened.
type acquiredScope struct {
	token    platform.Token
	desktop  platform.Desktop
	prevDesk platform.Desktop
}

func (s *Switcher) acquire(snapshot *platform.SessionSnapshot) *acquiredScope {
	sc := &acquiredScope{}

	var sid platform.SessionID
	if snapshot != nil {
		sid = snapshot.SessionID
	} else {
		id, err := s.detector.ActiveSession()
		if err != nil {
			log.Warn("desktop scope: failed to resolve active session", "error", err)
			return sc
		}
		sid = id
	}
	if sid == platform.NoSession {
		log.Warn("desktop scope: no active interactive session")
		return sc
	}

	tok, err := s.impersonator.ImpersonationToken(sid)
	if err != nil {
		log.Warn("desktop scope: failed to duplicate token", "session", sid, "error", err)
		return sc
	}
	sc.token = tok

	if err := s.impersonator.SetThreadToken(tok); err != nil {
		log.Warn("desktop scope: failed to attach token to thread", "session", sid, "error", err)
		return sc
	}

	desk, err := s.attacher.OpenInputDesktop()
	if err != nil {
		log.Warn("desktop scope: OpenInputDesktop failed, falling back to named desktop", "error", err)
		desk, err = s.attacher.OpenNamedDesktop("Default")
		if err != nil {
			log.Warn("desktop scope: named desktop failed, falling back to secure desktop", "error", err)
			desk, err = s.attacher.OpenSecureDesktop()
			if err != nil {
				log.Warn("desktop scope: secure desktop fallback also failed", "error", err)
				return sc
			}
		}
	}
	sc.desktop = desk

	prev, err := s.attacher.SetThreadDesktop(desk)
	if err != nil {
		log.Warn("desktop scope: SetThreadDesktop failed", "error", err)
		return sc
	}
	sc.prevDesk = prev

	return sc
}

// release undoes acquire in LIFO order: restore the previous desktop,
// close the opened one, clear the thread token, close the token
// handle. Impersonation is cleared here rather than per desktop-local
// re-entry, per the invariant that impersonation outlives the desktop
// swap until the outermost scope exits.
func (s *Switcher) release(sc *acquiredScope) {
	if sc.prevDesk != nil {
		if _, err := s.attacher.SetThreadDesktop(sc.prevDesk); err != nil {
			log.Warn("desktop scope: failed to restore previous desktop", "error", err)
		}
	}
	if sc.desktop != nil {
		if err := sc.desktop.Close(); err != nil {
			log.Warn("desktop scope: failed to close opened desktop", "error", err)
		}
	}
	if sc.token != nil {
		if err := s.impersonator.ClearThreadToken(); err != nil {
			log.Warn("desktop scope: failed to revert thread token", "error", err)
		}
		if err := sc.token.Close(); err != nil {
			log.Warn("desktop scope: failed to close token handle", "error", err)
		}
	}
}
