// Package broker issues and validates short-lived desktop session
// tokens, enforces the concurrent-session cap, and purges expired
// state on a periodic sweep, keyed by caller id and opaque bearer
// token.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openctrol/agent/internal/logging"
)

var log = logging.L("broker")

const (
	minTTL = 60 * time.Second
	maxTTL = 3600 * time.Second

	purgeInterval = 10 * time.Second

	rateLimitAttempts = 5
	rateLimitWindow   = time.Second
)

// DesktopSession is a single active remote-desktop attachment.
type DesktopSession struct {
	ID        string
	CallerID  string
	StartedAt time.Time
	ExpiresAt time.Time

	cancel context.CancelFunc
}

// Attach records a cancellation source for a streaming channel bound to
// this session, so EndSession can tear it down out-of-band.
func (s *DesktopSession) Attach(cancel context.CancelFunc) {
	s.cancel = cancel
}

// Broker enforces the allowlist, issues and validates tokens, and
// tracks active sessions against the configured concurrency cap.
type Broker struct {
	maxConcurrentSessions int
	allowlist             map[string]bool
	allowEmptyAllowlist   bool

	limiter *rateLimiter

	mu       sync.RWMutex
	tokens   map[string]SessionToken
	sessions map[string]*DesktopSession
	closed   bool

	cancelPurge context.CancelFunc
	doneCh      chan struct{}
}

// New builds a Broker. allowlist may be empty; whether an empty
// allowlist means allow-all is controlled explicitly by
// allowEmptyAllowlist rather than inferred from list length.
func New(maxConcurrentSessions int, allowlist []string, allowEmptyAllowlist bool) *Broker {
	set := make(map[string]bool, len(allowlist))
	for _, id := range allowlist {
		set[id] = true
	}
	if maxConcurrentSessions <= 0 {
		maxConcurrentSessions = 1
	}
	return &Broker{
		maxConcurrentSessions: maxConcurrentSessions,
		allowlist:             set,
		allowEmptyAllowlist:   allowEmptyAllowlist,
		limiter:               newRateLimiter(rateLimitAttempts, rateLimitWindow),
		tokens:                make(map[string]SessionToken),
		sessions:              make(map[string]*DesktopSession),
		doneCh:                make(chan struct{}),
	}
}

// Start launches the periodic purge loop. Safe to call once.
func (b *Broker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancelPurge = cancel
	go b.purgeLoop(ctx)
}

// Stop halts the purge loop and marks the broker closed.
func (b *Broker) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	if b.cancelPurge != nil {
		b.cancelPurge()
	}
	<-b.doneCh
}

func (b *Broker) purgeLoop(ctx context.Context) {
	defer close(b.doneCh)
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.purgeExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) purgeExpired() {
	now := time.Now()

	b.mu.Lock()
	var endedSessions []*DesktopSession
	for id, s := range b.sessions {
		if now.After(s.ExpiresAt) {
			endedSessions = append(endedSessions, s)
			delete(b.sessions, id)
		}
	}
	for v, t := range b.tokens {
		if t.Expired(now) {
			delete(b.tokens, v)
		}
	}
	b.mu.Unlock()

	for _, s := range endedSessions {
		log.Info("session expired", "sessionId", s.ID, "callerId", s.CallerID)
		if s.cancel != nil {
			s.cancel()
		}
	}
}

// IsCallerAllowed checks the configured allowlist.
func (b *Broker) IsCallerAllowed(callerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.allowlist) == 0 {
		return b.allowEmptyAllowlist
	}
	return b.allowlist[callerID]
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < minTTL {
		return minTTL
	}
	if ttl > maxTTL {
		return maxTTL
	}
	return ttl
}

// IssueToken generates a cryptographically random bearer token bound to
// callerID, valid for the clamped ttl.
func (b *Broker) IssueToken(callerID string, ttl time.Duration) (SessionToken, error) {
	ttl = clampTTL(ttl)

	value, err := generateTokenValue()
	if err != nil {
		return SessionToken{}, err
	}

	now := time.Now()
	tok := SessionToken{
		Value:     value,
		CallerID:  callerID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return SessionToken{}, ErrBrokerClosed
	}
	b.tokens[tok.Value] = tok
	return tok, nil
}

// ValidateToken looks up value, failing on unknown or expired tokens.
func (b *Broker) ValidateToken(value string) (SessionToken, error) {
	b.mu.RLock()
	tok, ok := b.tokens[value]
	b.mu.RUnlock()

	if !ok {
		return SessionToken{}, ErrTokenUnknown
	}
	if tok.Expired(time.Now()) {
		return SessionToken{}, ErrTokenExpired
	}
	return tok, nil
}

// StartSession begins tracking a new desktop session for callerID,
// failing with ErrSessionLimit once the concurrent-session cap is
// reached.
func (b *Broker) StartSession(callerID string, ttl time.Duration) (*DesktopSession, error) {
	ttl = clampTTL(ttl)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	if len(b.sessions) >= b.maxConcurrentSessions {
		return nil, ErrSessionLimit
	}

	now := time.Now()
	s := &DesktopSession{
		ID:        uuid.NewString(),
		CallerID:  callerID,
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	b.sessions[s.ID] = s
	log.Info("session started", "sessionId", s.ID, "callerId", callerID, "ttl", ttl)
	return s, nil
}

// EndSession removes sessionID and signals its attached stream
// cancellation, if any. Idempotent: ending an unknown session is a
// no-op that reports false.
func (b *Broker) EndSession(sessionID string) bool {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	log.Info("session ended", "sessionId", sessionID, "callerId", s.CallerID)
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// Session returns the active session with the given id, if any.
func (b *Broker) Session(sessionID string) (*DesktopSession, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[sessionID]
	return s, ok
}

// ActiveSessionCount reports the current number of tracked sessions.
func (b *Broker) ActiveSessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// AllowAttempt applies the per-caller connection-attempt rate limit
// ahead of an expensive operation like token issuance.
func (b *Broker) AllowAttempt(callerID string) error {
	if !b.limiter.allow(callerID) {
		return fmt.Errorf("%w: %s", ErrRateLimited, callerID)
	}
	return nil
}
