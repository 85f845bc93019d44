// Package slate is a client library for the Slate production-tracking
// server. It provides an authenticated Connection with retry and error
// classification over REST and GraphQL, a swappable default-connection
// accessor for call sites that do not thread a Connection explicitly, and
// the transport that the entityhub and operations packages build on.
package slate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Retry and backoff defaults. MaxRetries counts retries, not attempts: a
// request is tried once plus up to MaxRetries more times.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3

	defaultBaseBackoff = 1 * time.Second
	defaultMaxBackoff  = 60 * time.Second
	backoffFactor      = 2.0
	jitterFraction     = 0.25

	userAgent = "slate-go/0.1"
)

// Identifying headers sent with every request when configured.
const (
	headerSiteID        = "x-slate-site-id"
	headerClientVersion = "x-slate-version"
	headerSender        = "x-sender"
)

// Connection is one authenticated channel to one Slate server: base URL,
// credential, cached server metadata, and retry policy. The URL and token
// are immutable for the Connection's lifetime — changing either means
// constructing a new Connection. Callers may hold any number of independent
// Connections; nothing here touches process-wide state.
type Connection struct {
	baseURL string
	restURL string
	gqlURL  string
	token   string

	siteID        string
	clientVersion string
	sender        string

	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	infoMu sync.Mutex
	info   *ServerInfo
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Connection) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried before
// the request surfaces ErrConnectionFailed.
func WithMaxRetries(n int) Option {
	return func(c *Connection) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff overrides the base and ceiling of the exponential backoff.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Connection) {
		if base > 0 {
			c.baseBackoff = base
		}

		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithLogger installs a structured logger. Nil falls back to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSiteID identifies this workstation/installation to the server.
func WithSiteID(id string) Option {
	return func(c *Connection) {
		c.siteID = id
	}
}

// WithClientVersion reports the embedding tool's version to the server.
func WithClientVersion(v string) Option {
	return func(c *Connection) {
		c.clientVersion = v
	}
}

// WithSender sets an opaque sender identifier, used by event consumers to
// recognize their own dispatches.
func WithSender(s string) Option {
	return func(c *Connection) {
		c.sender = s
	}
}

// WithRateLimit caps outgoing requests at rps requests per second with the
// given burst. Zero rps leaves the connection unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Connection) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}

			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewConnection creates a Connection to the server at baseURL authenticated
// by token. The address is normalized (scheme defaulted to https, trailing
// slashes stripped); a malformed address returns *URLError. An empty token
// is allowed for the few unauthenticated endpoints (server info, login).
//
// No network traffic happens here — call Connect to validate the pair.
func NewConnection(baseURL, token string, opts ...Option) (*Connection, error) {
	normalized, err := NormalizeServerURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		baseURL:     normalized,
		restURL:     normalized + "/api",
		gqlURL:      normalized + "/graphql",
		token:       token,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		logger:      slog.Default(),
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		sleepFunc:   timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the normalized server address.
func (c *Connection) BaseURL() string {
	return c.baseURL
}

// ServerInfo is the cached server metadata captured by Connect.
type ServerInfo struct {
	Version    Version
	RawVersion string
	Uptime     time.Duration
	Motd       string
}

// serverInfoResponse is the wire shape of GET /api/info.
type serverInfoResponse struct {
	Version string  `json:"version"`
	Uptime  float64 `json:"uptime"`
	Motd    string  `json:"motd"`
}

func (r *serverInfoResponse) toServerInfo() (ServerInfo, error) {
	v, err := ParseVersion(r.Version)
	if err != nil {
		return ServerInfo{}, err
	}

	return ServerInfo{
		Version:    v,
		RawVersion: r.Version,
		Uptime:     time.Duration(r.Uptime * float64(time.Second)),
		Motd:       r.Motd,
	}, nil
}

// Connect validates the address/credential pair with a lightweight identity
// call and caches the server metadata for the Connection's lifetime.
// It fails with ErrServerUnreachable when the server never answers,
// ErrIncompatibleServer when the server version is below MinServerVersion,
// and ErrAuthentication when the credential is rejected.
func (c *Connection) Connect(ctx context.Context) error {
	info, err := c.fetchServerInfo(ctx)
	if err != nil {
		return err
	}

	if !info.Version.AtLeast(MinServerVersion) {
		return fmt.Errorf("slate: server %s is older than minimum supported %s: %w",
			info.Version, MinServerVersion, ErrIncompatibleServer)
	}

	if _, err := c.CurrentUser(ctx); err != nil {
		return err
	}

	c.infoMu.Lock()
	c.info = &info
	c.infoMu.Unlock()

	c.logger.Debug("connected",
		slog.String("server", c.baseURL),
		slog.String("version", info.RawVersion),
	)

	return nil
}

// ServerInfo returns the cached server metadata, fetching it only if the
// cache has never been populated. Use RefreshServerInfo to force a refetch.
func (c *Connection) ServerInfo(ctx context.Context) (ServerInfo, error) {
	c.infoMu.Lock()
	cached := c.info
	c.infoMu.Unlock()

	if cached != nil {
		return *cached, nil
	}

	return c.RefreshServerInfo(ctx)
}

// RefreshServerInfo refetches the server metadata and replaces the cache.
func (c *Connection) RefreshServerInfo(ctx context.Context) (ServerInfo, error) {
	info, err := c.fetchServerInfo(ctx)
	if err != nil {
		return ServerInfo{}, err
	}

	c.infoMu.Lock()
	c.info = &info
	c.infoMu.Unlock()

	return info, nil
}

// AssertServerVersion returns ErrIncompatibleServer when the server is older
// than min. Feature-gated call sites use this before version-dependent
// endpoints.
func (c *Connection) AssertServerVersion(ctx context.Context, min Version) error {
	info, err := c.ServerInfo(ctx)
	if err != nil {
		return err
	}

	if !info.Version.AtLeast(min) {
		return fmt.Errorf("slate: feature requires server %s, connected to %s: %w",
			min, info.Version, ErrIncompatibleServer)
	}

	return nil
}

func (c *Connection) fetchServerInfo(ctx context.Context) (ServerInfo, error) {
	resp, err := c.Get(ctx, "info")
	if err != nil {
		return ServerInfo{}, err
	}

	var wire serverInfoResponse
	if err := resp.DecodeJSON(&wire); err != nil {
		return ServerInfo{}, err
	}

	return wire.toServerInfo()
}
