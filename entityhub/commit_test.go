package entityhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slate "github.com/slatehq/slate-go"
	"github.com/slatehq/slate-go/operations"
)

// wireOp mirrors the operation wire shape for asserting submitted batches.
type wireOp struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Data       map[string]any `json:"data"`
}

type wireBatch struct {
	Operations []wireOp `json:"operations"`
	CanFail    bool     `json:"canFail"`
}

// opsServer answers batch submissions with respond and records every batch
// it saw.
type opsServer struct {
	*httptest.Server

	batches []wireBatch
}

func newOpsServer(t *testing.T, respond func(op wireOp) map[string]any) *opsServer {
	t.Helper()

	os := &opsServer{}

	os.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/projects/Film/operations", r.URL.Path)

		var batch wireBatch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		os.batches = append(os.batches, batch)

		results := make([]map[string]any, 0, len(batch.Operations))
		for _, op := range batch.Operations {
			results = append(results, respond(op))
		}

		allOK := true
		for _, res := range results {
			if ok, _ := res["success"].(bool); !ok {
				allOK = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"operations": results,
			"success":    allOK,
		})
	}))

	t.Cleanup(os.Close)

	return os
}

// okResult acknowledges one operation, assigning sequential server IDs to
// creates.
func okResult() func(op wireOp) map[string]any {
	next := 0

	return func(op wireOp) map[string]any {
		res := map[string]any{
			"id":       op.ID,
			"type":     op.Type,
			"entityId": op.EntityID,
			"success":  true,
		}

		if op.Type == "create" {
			next++
			res["assignedId"] = fmt.Sprintf("srv-%03d", next)
		}

		return res
	}
}

func newCommitHub(t *testing.T, srv *opsServer) *Hub {
	t.Helper()

	conn, err := slate.NewConnection(srv.URL, "test-token", slate.WithMaxRetries(0))
	require.NoError(t, err)

	h, err := New(conn, "Film")
	require.NoError(t, err)

	return h
}

func TestCommitChanges_CreateOrderAndIDRewrite(t *testing.T) {
	srv := newOpsServer(t, okResult())
	h := newCommitHub(t, srv)

	seq, err := h.AddNew(KindFolder, "seq010", "")
	require.NoError(t, err)
	shot, err := h.AddNew(KindFolder, "sh010", seq.ID)
	require.NoError(t, err)
	task, err := h.AddNew(KindTask, "animation", shot.ID, WithSubType("Animation"))
	require.NoError(t, err)

	tmpSeq, tmpShot := seq.ID, shot.ID

	results, err := h.CommitChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results.AllSucceeded())

	// Submission order is parent before child, and same-batch parent
	// references carry the parent's temporary identifier.
	require.Len(t, srv.batches, 1)
	ops := srv.batches[0].Operations
	require.Len(t, ops, 3)
	assert.True(t, srv.batches[0].CanFail)
	assert.Equal(t, tmpSeq, ops[0].EntityID)
	assert.Equal(t, tmpShot, ops[1].EntityID)
	assert.Equal(t, tmpSeq, ops[1].Data["parentId"])
	assert.Equal(t, tmpShot, ops[2].Data["folderId"])

	// Every temporary identifier was replaced by the assigned one,
	// including as the parent reference of entities queued after it.
	assert.Equal(t, "srv-001", seq.ID)
	assert.Equal(t, "srv-002", shot.ID)
	assert.Equal(t, "srv-003", task.ID)
	assert.Equal(t, "srv-001", shot.ParentID)
	assert.Equal(t, "srv-002", task.ParentID)

	_, ok := h.Get(tmpSeq)
	assert.False(t, ok)

	got, ok := h.Get("srv-001")
	require.True(t, ok)
	assert.Same(t, seq, got)
	assert.Equal(t, []*Entity{shot}, h.Children("srv-001"))

	assert.False(t, h.HasPendingChanges())
	assert.True(t, seq.IsPersisted())
}

func TestCommitChanges_PartialFailure(t *testing.T) {
	next := 0
	srv := newOpsServer(t, func(op wireOp) map[string]any {
		if op.Data["name"] == "beta" {
			return map[string]any{
				"id": op.ID, "type": op.Type, "entityId": op.EntityID,
				"success": false, "detail": "name already in use",
			}
		}

		next++

		return map[string]any{
			"id": op.ID, "type": op.Type, "entityId": op.EntityID,
			"assignedId": fmt.Sprintf("srv-%03d", next), "success": true,
		}
	})
	h := newCommitHub(t, srv)

	alpha, err := h.AddNew(KindFolder, "alpha", "")
	require.NoError(t, err)
	beta, err := h.AddNew(KindFolder, "beta", "")
	require.NoError(t, err)
	gamma, err := h.AddNew(KindFolder, "gamma", "")
	require.NoError(t, err)

	results, err := h.CommitChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Operations 1 and 3 persisted with assigned identifiers applied;
	// operation 2 failed and its entity stays new for retry.
	assert.Len(t, results.Failed(), 1)
	assert.Equal(t, "srv-001", alpha.ID)
	assert.Equal(t, "srv-002", gamma.ID)
	assert.False(t, h.IsNew(alpha.ID))
	assert.False(t, h.IsNew(gamma.ID))

	assert.True(t, h.IsNew(beta.ID))
	assert.False(t, beta.IsPersisted())
	assert.Equal(t, "name already in use", beta.CommitError)

	// The next commit retries only the failed create.
	name := "beta2"
	require.NoError(t, h.UpdateEntity(beta.ID, Update{Name: &name}))

	results, err = h.CommitChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results.AllSucceeded())
	assert.Equal(t, "srv-003", beta.ID)
	assert.Empty(t, beta.CommitError)
	assert.False(t, h.HasPendingChanges())
}

func TestCommitChanges_DeleteOrderChildFirst(t *testing.T) {
	srv := newOpsServer(t, okResult())
	h := newCommitHub(t, srv)

	seed(h, &Entity{ID: "f", Kind: KindFolder, Name: "sh010"})
	seed(h, &Entity{ID: "p", Kind: KindProduct, Name: "renderMain", ParentID: "f"})
	seed(h, &Entity{ID: "v", Kind: KindVersion, Name: "v001", ParentID: "p", Version: 1})
	seed(h, &Entity{ID: "r", Kind: KindRepresentation, Name: "exr", ParentID: "v"})

	require.NoError(t, h.DeleteEntity("f"))

	results, err := h.CommitChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, results.AllSucceeded())

	require.Len(t, srv.batches, 1)
	ops := srv.batches[0].Operations
	require.Len(t, ops, 4)

	// Every descendant's delete precedes its ancestor's.
	assert.Equal(t, []string{"r", "v", "p", "f"}, []string{
		ops[0].EntityID, ops[1].EntityID, ops[2].EntityID, ops[3].EntityID,
	})

	for _, id := range []string{"f", "p", "v", "r"} {
		_, ok := h.Get(id)
		assert.False(t, ok, "id %s", id)
	}

	assert.False(t, h.HasPendingChanges())
}

func TestCommitChanges_UpdatePayloadIsDiff(t *testing.T) {
	srv := newOpsServer(t, okResult())
	h := newCommitHub(t, srv)

	folder := seed(h, &Entity{
		ID: "f", Kind: KindFolder, Name: "sh010", Status: "ready",
		Attribs: map[string]any{"fps": 24.0, "handles": 8.0},
	})

	status := "done"
	require.NoError(t, h.UpdateEntity(folder.ID, Update{
		Status:        &status,
		SetAttribs:    map[string]any{"frameStart": 1001},
		RemoveAttribs: []string{"handles"},
	}))

	results, err := h.CommitChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	ops := srv.batches[0].Operations
	require.Len(t, ops, 1)
	assert.Equal(t, "update", ops[0].Type)

	// Only the changed fields travel; the removed key serializes as null.
	data := ops[0].Data
	assert.Equal(t, "done", data["status"])
	assert.NotContains(t, data, "name")

	attrib := data["attrib"].(map[string]any)
	assert.Equal(t, 1001.0, attrib["frameStart"])

	val, present := attrib["handles"]
	assert.True(t, present)
	assert.Nil(t, val)
	assert.NotContains(t, attrib, "fps")

	assert.False(t, h.IsDirty(folder.ID))

	// The refreshed snapshot makes a repeat commit a no-op.
	results, err = h.CommitChanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	require.Len(t, srv.batches, 1)
}

func TestCommitChanges_FailedUpdateStaysDirty(t *testing.T) {
	srv := newOpsServer(t, func(op wireOp) map[string]any {
		return map[string]any{
			"id": op.ID, "type": op.Type, "entityId": op.EntityID,
			"success": false, "detail": "status not allowed",
		}
	})
	h := newCommitHub(t, srv)

	folder := seed(h, &Entity{ID: "f", Kind: KindFolder, Name: "sh010", Status: "ready"})

	status := "bogus"
	require.NoError(t, h.UpdateEntity(folder.ID, Update{Status: &status}))

	results, err := h.CommitChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results.AllSucceeded())

	// The local edit is never dropped: the entity stays dirty with the
	// server's reason attached, eligible for the next commit.
	assert.True(t, h.IsDirty(folder.ID))
	assert.Equal(t, "bogus", folder.Status)
	assert.Equal(t, "status not allowed", folder.CommitError)
}

func TestCommitChanges_EditedBackToCommittedState(t *testing.T) {
	h := newLocalHub(t)
	folder := seed(h, &Entity{ID: "f", Kind: KindFolder, Name: "sh010"})

	name := "sh020"
	require.NoError(t, h.UpdateEntity(folder.ID, Update{Name: &name}))
	back := "sh010"
	require.NoError(t, h.UpdateEntity(folder.ID, Update{Name: &back}))

	// Nothing differs from the committed snapshot, so nothing is
	// submitted — the failClient proves there is no request.
	results, err := h.CommitChanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, h.IsDirty(folder.ID))
}

func TestCommitChanges_TransportFailureKeepsPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	conn, err := slate.NewConnection(srv.URL, "test-token", slate.WithMaxRetries(0))
	require.NoError(t, err)

	h, err := New(conn, "Film")
	require.NoError(t, err)

	folder, err := h.AddNew(KindFolder, "sh010", "")
	require.NoError(t, err)

	_, err = h.CommitChanges(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, slate.ErrConnectionFailed)

	// Nothing reached the server; the pending diff is intact for retry.
	assert.True(t, h.IsNew(folder.ID))
	assert.True(t, h.HasPendingChanges())
}

func TestCommitChanges_ResultsCarryContext(t *testing.T) {
	srv := newOpsServer(t, okResult())
	h := newCommitHub(t, srv)

	folder, err := h.AddNew(KindFolder, "sh010", "")
	require.NoError(t, err)

	tmpID := folder.ID

	results, err := h.CommitChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, operations.Create, results[0].Type)
	assert.Equal(t, "folder", results[0].EntityType)
	assert.Equal(t, tmpID, results[0].EntityID)
	assert.Equal(t, "srv-001", results[0].AssignedID)
}
