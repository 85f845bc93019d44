// Package config resolves client settings for the default connection
// accessor: built-in defaults, an optional TOML tuning file, and environment
// variables, in that order. The server address and API key come exclusively
// from the environment — a config file can tune behavior but never supply a
// credential.
package config

import (
	"fmt"
	"time"
)

// Defaults for client behavior when neither the config file nor the
// environment says otherwise.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
)

// Config is the fully resolved client configuration.
type Config struct {
	ServerURL  string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	SiteID     string
	RateLimit  float64
	RateBurst  int
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// fileConfig is the TOML shape of the optional tuning file. Pointer fields
// distinguish "not set" from zero values.
type fileConfig struct {
	Timeout    string   `toml:"timeout"`
	MaxRetries *int     `toml:"max_retries"`
	SiteID     string   `toml:"site_id"`
	RateLimit  *float64 `toml:"rate_limit"`
	RateBurst  *int     `toml:"rate_burst"`
}

// Validate rejects configurations that would misbehave at runtime.
func Validate(cfg Config) error {
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}

	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", cfg.MaxRetries)
	}

	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %g", cfg.RateLimit)
	}

	return nil
}
