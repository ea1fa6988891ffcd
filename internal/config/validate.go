package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidationResult separates validation errors that must block startup
// from ones that are logged and auto-corrected.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just
// want to log everything.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Values that would
// make the agent unreachable or unsafe to run (bad API key, certificate
// path that fails to parse) are fatal; whether the certificate file
// exists is not checked. Values that are merely out of
// range are clamped to a safe default and reported as warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		r.Fatals = append(r.Fatals, fmt.Errorf("listen_port %d is out of range [1,65535]", c.ListenPort))
	}

	if c.APIKey != "" {
		for _, ch := range c.APIKey {
			if unicode.IsControl(ch) {
				r.Fatals = append(r.Fatals, fmt.Errorf("api_key contains control characters"))
				break
			}
		}
	}

	if c.TLSCertPath != "" {
		if _, err := url.Parse(c.TLSCertPath); err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("tls_cert_path %q is not a valid path: %w", c.TLSCertPath, err))
		}
	}

	if c.MaxConcurrentSessions < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_concurrent_sessions %d is below minimum 1, clamping", c.MaxConcurrentSessions))
		c.MaxConcurrentSessions = 1
	} else if c.MaxConcurrentSessions > 16 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_concurrent_sessions %d exceeds maximum 16, clamping", c.MaxConcurrentSessions))
		c.MaxConcurrentSessions = 16
	}

	if c.TargetFrameRate < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("target_frame_rate %d is below minimum 1, clamping", c.TargetFrameRate))
		c.TargetFrameRate = 1
	} else if c.TargetFrameRate > 60 {
		r.Warnings = append(r.Warnings, fmt.Errorf("target_frame_rate %d exceeds maximum 60, clamping", c.TargetFrameRate))
		c.TargetFrameRate = 60
	}

	// Clamp to the allowed session token TTL range: [60s, 3600s].
	if c.SessionTokenTTLSeconds < 60 {
		r.Warnings = append(r.Warnings, fmt.Errorf("session_token_ttl_seconds %d is below minimum 60, clamping", c.SessionTokenTTLSeconds))
		c.SessionTokenTTLSeconds = 60
	} else if c.SessionTokenTTLSeconds > 3600 {
		r.Warnings = append(r.Warnings, fmt.Errorf("session_token_ttl_seconds %d exceeds maximum 3600, clamping", c.SessionTokenTTLSeconds))
		c.SessionTokenTTLSeconds = 3600
	}

	if len(c.CallerAllowlist) == 0 && !c.AllowEmptyAllowlist {
		r.Warnings = append(r.Warnings, fmt.Errorf("caller_allowlist is empty and allow_empty_allowlist is false; all callers will be rejected"))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}
