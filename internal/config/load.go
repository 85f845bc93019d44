package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// loadFile reads and parses the TOML tuning file. Unknown keys are fatal
// errors with "did you mean?" suggestions — silently ignoring a typo in a
// config file leads to hard-to-debug behavior.
func loadFile(path string) (fileConfig, error) {
	var fc fileConfig

	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fileConfig{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return fileConfig{}, fmt.Errorf("config file %s: %w", path, err)
	}

	return fc, nil
}

// Resolve builds the effective client configuration by layering defaults,
// the optional TOML file named by SLATE_CONFIG_FILE, and environment
// overrides, then validating the result. The server URL and API key come
// only from the environment; an empty value means the caller (the accessor)
// must refuse to build a connection.
func Resolve() (Config, error) {
	cfg := DefaultConfig()
	env := ReadEnvOverrides()

	// 1. File layer. The path is explicit opt-in, so a missing or broken
	// file is an error rather than a silent fallback.
	if env.ConfigFile != "" {
		fc, err := loadFile(env.ConfigFile)
		if err != nil {
			return Config{}, err
		}

		if fc.Timeout != "" {
			d, err := parseTimeout(fc.Timeout)
			if err != nil {
				return Config{}, fmt.Errorf("config file timeout: %w", err)
			}

			cfg.Timeout = d
		}

		if fc.MaxRetries != nil {
			cfg.MaxRetries = *fc.MaxRetries
		}

		if fc.SiteID != "" {
			cfg.SiteID = fc.SiteID
		}

		if fc.RateLimit != nil {
			cfg.RateLimit = *fc.RateLimit
		}

		if fc.RateBurst != nil {
			cfg.RateBurst = *fc.RateBurst
		}
	}

	// 2. Environment layer.
	cfg.ServerURL = env.ServerURL
	cfg.APIKey = env.APIKey

	if env.Timeout != "" {
		d, err := parseTimeout(env.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvTimeout, err)
		}

		cfg.Timeout = d
	}

	if env.MaxRetries != "" {
		n, err := strconv.Atoi(env.MaxRetries)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %q is not a number", EnvMaxRetries, env.MaxRetries)
		}

		cfg.MaxRetries = n
	}

	if env.SiteID != "" {
		cfg.SiteID = env.SiteID
	}

	// 3. Validate the final result.
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// parseTimeout accepts either a bare number of seconds ("30") or a Go
// duration string ("1m30s").
func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("timeout %q must be positive", s)
		}

		return time.Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("timeout %q is neither seconds nor a duration", s)
	}

	if d <= 0 {
		return 0, fmt.Errorf("timeout %q must be positive", s)
	}

	return d, nil
}
