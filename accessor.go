package slate

import (
	"context"
	"fmt"
	"sync"

	"github.com/slatehq/slate-go/internal/config"
)

// BuildFunc constructs (and connects) the Connection a Holder hands out on
// first use.
type BuildFunc func(ctx context.Context) (*Connection, error)

// Holder provides thread-safe access to one lazily-built, replaceable
// Connection. It is the non-singleton answer to ambient connection state:
// callers that want isolation construct their own Connections (or their own
// Holders) and never touch the package-level default.
type Holder struct {
	mu    sync.Mutex
	conn  *Connection
	build BuildFunc
}

// NewHolder creates a Holder. A nil build falls back to constructing from
// the SLATE_SERVER_URL / SLATE_API_KEY environment.
func NewHolder(build BuildFunc) *Holder {
	if build == nil {
		build = buildFromEnv
	}

	return &Holder{build: build}
}

// Get returns the held Connection, building and connecting one on first use.
// Concurrent callers block until the first build finishes.
func (h *Holder) Get(ctx context.Context) (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != nil {
		return h.conn, nil
	}

	conn, err := h.build(ctx)
	if err != nil {
		return nil, err
	}

	h.conn = conn

	return conn, nil
}

// Set installs a caller-supplied Connection, bypassing construction.
// Tests install doubles this way.
func (h *Holder) Set(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conn = conn
}

// Reset clears the held Connection. The next Get rebuilds from scratch —
// a stale credential is never silently reused.
func (h *Holder) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conn = nil
}

// defaultHolder backs the package-level accessor functions.
var defaultHolder = NewHolder(nil)

// GetDefault returns the ambient Connection, building it from the
// environment on first use. It fails with ErrConfiguration when
// SLATE_SERVER_URL or SLATE_API_KEY is unset. EntityHub and Operations
// Sessions take explicit Connections; only top-level convenience wrappers
// fall back to this accessor.
func GetDefault(ctx context.Context) (*Connection, error) {
	return defaultHolder.Get(ctx)
}

// SetDefault installs conn as the ambient Connection.
func SetDefault(conn *Connection) {
	defaultHolder.Set(conn)
}

// ResetDefault clears the ambient Connection; the next GetDefault rebuilds
// from the environment.
func ResetDefault() {
	defaultHolder.Reset()
}

// buildFromEnv resolves client configuration (environment plus the optional
// TOML tuning file) and constructs a connected Connection from it.
func buildFromEnv(ctx context.Context) (*Connection, error) {
	cfg, err := config.Resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrConfiguration, config.EnvServerURL)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrConfiguration, config.EnvAPIKey)
	}

	opts := []Option{
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithSiteID(cfg.SiteID),
	}

	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}

	conn, err := NewConnection(cfg.ServerURL, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	return conn, nil
}
