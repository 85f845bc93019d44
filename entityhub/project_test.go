package entityhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slate "github.com/slatehq/slate-go"
)

func TestFetchProject(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/projects/Film", r.URL.Path)
		calls.Add(1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "Film",
			"code": "flm",
			"library": false,
			"folderTypes": [{"name": "Sequence"}, {"name": "Shot"}],
			"taskTypes": [{"name": "Animation"}, {"name": "Compositing"}],
			"statuses": [{"name": "ready"}, {"name": "done"}],
			"attrib": {"fps": 24}
		}`))
	}))
	t.Cleanup(srv.Close)

	conn, err := slate.NewConnection(srv.URL, "test-token")
	require.NoError(t, err)

	h, err := New(conn, "Film")
	require.NoError(t, err)

	p, err := h.FetchProject(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flm", p.Code)
	assert.Equal(t, []string{"Sequence", "Shot"}, p.FolderTypes)
	assert.Equal(t, []string{"Animation", "Compositing"}, p.TaskTypes)
	assert.Equal(t, []string{"ready", "done"}, p.Statuses)

	// ProjectInfo serves from cache.
	_, err = h.ProjectInfo(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	// The loaded record now backs subtype validation.
	_, err = h.AddNew(KindFolder, "ep101", "", WithSubType("Episode"))
	assert.Error(t, err)
}
