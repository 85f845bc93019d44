package config

import "os"

// Environment variable names. URL and key are the two the accessor
// contract requires; the rest are optional tuning.
const (
	EnvServerURL  = "SLATE_SERVER_URL"
	EnvAPIKey     = "SLATE_API_KEY"
	EnvTimeout    = "SLATE_TIMEOUT"
	EnvMaxRetries = "SLATE_MAX_RETRIES"
	EnvSiteID     = "SLATE_SITE_ID"
	EnvConfigFile = "SLATE_CONFIG_FILE"
)

// EnvOverrides holds raw values read from the environment. These are
// resolved on top of file values by Resolve; callers do not consume them
// directly.
type EnvOverrides struct {
	ServerURL  string // SLATE_SERVER_URL: server base address
	APIKey     string // SLATE_API_KEY: access token
	Timeout    string // SLATE_TIMEOUT: seconds or a Go duration
	MaxRetries string // SLATE_MAX_RETRIES: retry ceiling
	SiteID     string // SLATE_SITE_ID: workstation identifier
	ConfigFile string // SLATE_CONFIG_FILE: path to the TOML tuning file
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ServerURL:  os.Getenv(EnvServerURL),
		APIKey:     os.Getenv(EnvAPIKey),
		Timeout:    os.Getenv(EnvTimeout),
		MaxRetries: os.Getenv(EnvMaxRetries),
		SiteID:     os.Getenv(EnvSiteID),
		ConfigFile: os.Getenv(EnvConfigFile),
	}
}
