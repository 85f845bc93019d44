package slate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityServer answers the two endpoints Connect touches. infoCalls
// counts /api/info hits so tests can assert on cache behavior.
type identityServer struct {
	*httptest.Server

	version   string
	userCode  int
	infoCalls atomic.Int64
}

func newIdentityServer(t *testing.T, version string) *identityServer {
	t.Helper()

	is := &identityServer{version: version, userCode: http.StatusOK}

	is.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/info":
			is.infoCalls.Add(1)
			_, _ = w.Write([]byte(`{"version":"` + is.version + `","uptime":12.5,"motd":"welcome"}`))
		case "/api/users/me":
			w.WriteHeader(is.userCode)

			if is.userCode == http.StatusOK {
				_, _ = w.Write([]byte(`{"name":"jane","email":"jane@studio.example"}`))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	t.Cleanup(is.Close)

	return is
}

func TestNewConnection_NormalizesURL(t *testing.T) {
	c, err := NewConnection("slate.studio.example/", "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://slate.studio.example", c.BaseURL())

	_, err = NewConnection("ftp://slate.studio.example", "tok")
	require.Error(t, err)

	var urlErr *URLError
	assert.ErrorAs(t, err, &urlErr)
}

func TestConnect_Success(t *testing.T) {
	srv := newIdentityServer(t, "1.4.2")
	c := newTestConn(t, srv.URL)

	require.NoError(t, c.Connect(context.Background()))

	info, err := c.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", info.RawVersion)
	assert.Equal(t, Version{Major: 1, Minor: 4, Patch: 2}, info.Version)
	assert.Equal(t, "welcome", info.Motd)

	// ServerInfo serves from the cache Connect populated.
	assert.EqualValues(t, 1, srv.infoCalls.Load())
}

func TestConnect_IncompatibleServer(t *testing.T) {
	srv := newIdentityServer(t, "0.9.7")
	c := newTestConn(t, srv.URL)

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrIncompatibleServer)
}

func TestConnect_RejectedCredential(t *testing.T) {
	srv := newIdentityServer(t, "1.2.0")
	srv.userCode = http.StatusUnauthorized

	c := newTestConn(t, srv.URL)

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	c := newTestConn(t, srv.URL, WithMaxRetries(0))

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrServerUnreachable)
}

func TestRefreshServerInfo(t *testing.T) {
	srv := newIdentityServer(t, "1.2.0")
	c := newTestConn(t, srv.URL)

	require.NoError(t, c.Connect(context.Background()))

	srv.version = "1.3.0"

	info, err := c.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", info.RawVersion, "plain ServerInfo never refetches")

	info, err = c.RefreshServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", info.RawVersion)
}

func TestAssertServerVersion(t *testing.T) {
	srv := newIdentityServer(t, "1.2.0")
	c := newTestConn(t, srv.URL)

	require.NoError(t, c.Connect(context.Background()))

	assert.NoError(t, c.AssertServerVersion(context.Background(), Version{Major: 1, Minor: 2}))
	assert.ErrorIs(t,
		c.AssertServerVersion(context.Background(), Version{Major: 1, Minor: 5}),
		ErrIncompatibleServer)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrThrottled},
		{http.StatusTeapot, ErrBadRequest},
		{http.StatusInternalServerError, ErrInternal},
		{http.StatusBadGateway, ErrInternal},
	}

	for _, tt := range tests {
		assert.ErrorIs(t, classifyStatus(tt.status), tt.sentinel, "status %d", tt.status)
	}

	assert.NoError(t, classifyStatus(http.StatusOK))
	assert.NoError(t, classifyStatus(http.StatusNoContent))
}
