package broker

import "errors"

var (
	ErrCallerNotAllowed = errors.New("broker: caller not in allowlist")
	ErrSessionLimit     = errors.New("broker: active session limit reached")
	ErrTokenUnknown     = errors.New("broker: unknown session token")
	ErrTokenExpired     = errors.New("broker: session token expired")
	ErrSessionUnknown   = errors.New("broker: unknown session id")
	ErrRateLimited      = errors.New("broker: caller rate limited")
	ErrBrokerClosed     = errors.New("broker: broker is closed")
)
