package controlplane

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/time/rate"
)

const apiKeyHeader = "X-API-Key"

// requireAPIKey wraps next with a constant-time API key check. An empty
// configured key leaves every wrapped endpoint open. GET /api/v1/health
// is not wrapped at all; it sits behind the global rate limiter only.
func requireAPIKey(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)
	return func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(apiKeyHeader))
		if len(got) != len(want) || subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// globalLimiter throttles the pre-auth surface (unauthenticated health
// checks, the pre-upgrade portion of the websocket handshake) against
// connection floods, independent of the per-stream input-rate window
// that is part of the core's own invariants.
func newGlobalLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(50), 100)
}

func rateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeError(w, http.StatusServiceUnavailable, "rate limited")
			return
		}
		next(w, r)
	}
}
