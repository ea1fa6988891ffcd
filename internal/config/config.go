// Package config loads and validates the agent's persisted state: the
// pieces of configuration the core reads but never owns itself (agent
// id, listen port, session limits, caller allowlist, API key,
// certificate material).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/openctrol/agent/internal/logging"
)

var log = logging.L("config")

func newAgentID() string {
	return uuid.NewString()
}

// Config mirrors the agent's persisted configuration file.
type Config struct {
	AgentID string `mapstructure:"agent_id"`

	ListenPort            int      `mapstructure:"listen_port"`
	MaxConcurrentSessions int      `mapstructure:"max_concurrent_sessions"`
	TargetFrameRate       int      `mapstructure:"target_frame_rate"`
	CallerAllowlist       []string `mapstructure:"caller_allowlist"`
	AllowEmptyAllowlist   bool     `mapstructure:"allow_empty_allowlist"`
	APIKey                string   `mapstructure:"api_key"`

	TLSCertPath      string `mapstructure:"tls_cert_path"`
	TLSCertPassBlob  string `mapstructure:"tls_cert_pass_blob"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	SessionTokenTTLSeconds int `mapstructure:"session_token_ttl_seconds"`
}

// Default returns the configuration used when no file or env var supplies
// a value.
func Default() *Config {
	return &Config{
		ListenPort:             44325,
		MaxConcurrentSessions:  1,
		TargetFrameRate:        30,
		AllowEmptyAllowlist:    false,
		LogLevel:               "info",
		LogFormat:              "text",
		SessionTokenTTLSeconds: 300,
	}
}

// Load reads configuration from cfgFile (or the platform config directory
// if empty), overlaid with OPENCTROL_-prefixed environment variables, and
// validates it. Fatal validation errors abort startup; warnings are
// logged and the (possibly clamped) config is returned.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("OPENCTROL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.AgentID == "" {
		cfg.AgentID = newAgentID()
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// Save persists cfg to the platform config directory, restricting the
// file to owner-only access since it carries the API key and certificate
// password blob.
func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	v.Set("agent_id", cfg.AgentID)
	v.Set("listen_port", cfg.ListenPort)
	v.Set("max_concurrent_sessions", cfg.MaxConcurrentSessions)
	v.Set("target_frame_rate", cfg.TargetFrameRate)
	v.Set("caller_allowlist", cfg.CallerAllowlist)
	v.Set("allow_empty_allowlist", cfg.AllowEmptyAllowlist)
	v.Set("api_key", cfg.APIKey)
	v.Set("tls_cert_path", cfg.TLSCertPath)
	v.Set("tls_cert_pass_blob", cfg.TLSCertPassBlob)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("session_token_ttl_seconds", cfg.SessionTokenTTLSeconds)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "agent.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "openctrol")
	case "darwin":
		return "/Library/Application Support/openctrol"
	default:
		return "/etc/openctrol"
	}
}
