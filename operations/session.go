// Package operations builds and submits ordered batches of entity
// create/update/delete operations against one project. A session is
// submitted once; the server executes each operation independently and the
// per-operation results come back as a Results list — partial success is
// the contract, not an error.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	slate "github.com/slatehq/slate-go"
)

// Kind tags an operation as a create, update, or delete.
type Kind string

// Operation kinds, matching the server's wire values.
const (
	Create Kind = "create"
	Update Kind = "update"
	Delete Kind = "delete"
)

// tempIDPrefix namespaces locally assigned identifiers away from
// server-assigned ones, so rewriting after a commit is a plain substitution.
const tempIDPrefix = "tmp-"

// NewTempID returns a fresh temporary entity identifier.
func NewTempID() string {
	return tempIDPrefix + newHexID()
}

// IsTempID reports whether id is a temporary (not yet server-assigned)
// identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// newHexID returns a dashless UUID, the server's identifier format.
func newHexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Operation is one pending change, in the server's wire shape.
type Operation struct {
	ID         string         `json:"id"`
	Type       Kind           `json:"type"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Data       map[string]any `json:"data,omitempty"`
}

// Client is the slice of the connection a session needs to commit.
// *slate.Connection satisfies it.
type Client interface {
	Post(ctx context.Context, path string, body any, opts ...slate.RequestOption) (*slate.Response, error)
}

// Session is an ordered batch of pending operations for one project.
// Build it up, submit it once with Commit, then discard it.
type Session struct {
	project   string
	ops       []*Operation
	committed bool
	logger    *slog.Logger
}

// SessionOption configures a Session at construction time.
type SessionOption func(*Session)

// WithLogger installs a structured logger. Nil falls back to slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates an empty session scoped to one project.
func NewSession(project string, opts ...SessionOption) *Session {
	s := &Session{
		project: project,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Project returns the project this session commits against.
func (s *Session) Project() string {
	return s.project
}

// Len returns the number of queued operations.
func (s *Session) Len() int {
	return len(s.ops)
}

// Operations returns a copy of the queued operations in submission order.
func (s *Session) Operations() []*Operation {
	out := make([]*Operation, len(s.ops))
	copy(out, s.ops)

	return out
}

// Create queues a create operation. entityID may be a temporary identifier
// (see NewTempID); later operations in the same session may reference it in
// their data, and the server resolves those references in order.
func (s *Session) Create(entityType, entityID string, data map[string]any) *Operation {
	op := &Operation{
		ID:         newHexID(),
		Type:       Create,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	}

	s.ops = append(s.ops, op)

	return op
}

// Update queues an update operation. changes contains only the fields being
// written; a nil value serializes as JSON null and clears the field
// server-side.
func (s *Session) Update(entityType, entityID string, changes map[string]any) *Operation {
	op := &Operation{
		ID:         newHexID(),
		Type:       Update,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       changes,
	}

	s.ops = append(s.ops, op)

	return op
}

// Delete queues a delete operation. The target must be a server-assigned
// identifier — entities that were never persisted have nothing to delete.
func (s *Session) Delete(entityType, entityID string) *Operation {
	op := &Operation{
		ID:         newHexID(),
		Type:       Delete,
		EntityType: entityType,
		EntityID:   entityID,
	}

	s.ops = append(s.ops, op)

	return op
}

// Append adds pre-built operations in order.
func (s *Session) Append(ops ...*Operation) {
	s.ops = append(s.ops, ops...)
}

// Extend adds a slice of pre-built operations in order, typically the
// Operations of another session.
func (s *Session) Extend(ops []*Operation) {
	s.ops = append(s.ops, ops...)
}

// Remove drops the operation with the given ID. Returns false when no such
// operation is queued.
func (s *Session) Remove(opID string) bool {
	for i, op := range s.ops {
		if op.ID == opID {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			return true
		}
	}

	return false
}

// Clear drops every queued operation.
func (s *Session) Clear() {
	s.ops = nil
}

// Validate checks the ordering invariant before submission: any operation
// that references a temporary identifier — as its target or inside its data
// — must come after the create that defines it, and deletes must target
// persisted entities.
func (s *Session) Validate() error {
	if s.project == "" {
		return errors.New("operations: session has no project")
	}

	created := make(map[string]bool)

	for _, op := range s.ops {
		if op.Type == Delete && IsTempID(op.EntityID) {
			return fmt.Errorf("operations: delete of %s %s targets an unpersisted entity",
				op.EntityType, op.EntityID)
		}

		if op.Type == Update && IsTempID(op.EntityID) && !created[op.EntityID] {
			return fmt.Errorf("operations: update of %s %s precedes its create",
				op.EntityType, op.EntityID)
		}

		for _, key := range sortedKeys(op.Data) {
			ref, ok := op.Data[key].(string)
			if ok && IsTempID(ref) && ref != op.EntityID && !created[ref] {
				return fmt.Errorf("operations: %s of %s %s references %s before its create",
					op.Type, op.EntityType, op.EntityID, ref)
			}
		}

		if op.Type == Create && IsTempID(op.EntityID) {
			created[op.EntityID] = true
		}
	}

	return nil
}

// commitRequest is the wire shape of a batch submission. canFail is always
// true: per-operation results are the contract, and the server must not
// abort the batch at the first rejection.
type commitRequest struct {
	Operations []*Operation `json:"operations"`
	CanFail    bool         `json:"canFail"`
}

// operationResult is the per-operation wire result.
type operationResult struct {
	ID         string `json:"id"`
	Type       Kind   `json:"type"`
	EntityID   string `json:"entityId"`
	AssignedID string `json:"assignedId"`
	Success    bool   `json:"success"`
	Detail     string `json:"detail"`
}

// commitResponse is the wire shape of the server's batch reply.
type commitResponse struct {
	Operations []operationResult `json:"operations"`
	Success    bool              `json:"success"`
}

// Commit validates and submits the session in one request, returning
// per-operation results in submission order. A transport-level failure
// leaves the session uncommitted so the caller may retry; once the server
// has answered, the session is spent and cannot be committed again.
func (s *Session) Commit(ctx context.Context, client Client) (Results, error) {
	if s.committed {
		return nil, errors.New("operations: session already committed")
	}

	if len(s.ops) == 0 {
		return Results{}, nil
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	resp, err := client.Post(ctx, "projects/"+url.PathEscape(s.project)+"/operations", commitRequest{
		Operations: s.ops,
		CanFail:    true,
	})
	if err != nil {
		return nil, err
	}

	var wire commitResponse
	if err := resp.DecodeJSON(&wire); err != nil {
		return nil, err
	}

	byID := make(map[string]operationResult, len(wire.Operations))
	for _, r := range wire.Operations {
		byID[r.ID] = r
	}

	results := make(Results, 0, len(s.ops))

	for _, op := range s.ops {
		r, ok := byID[op.ID]
		if !ok {
			return nil, fmt.Errorf("operations: server returned no result for %s of %s %s",
				op.Type, op.EntityType, op.EntityID)
		}

		results = append(results, Result{
			OpID:       op.ID,
			Type:       op.Type,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			AssignedID: r.AssignedID,
			Success:    r.Success,
			Detail:     r.Detail,
		})
	}

	s.committed = true

	if failed := results.Failed(); len(failed) > 0 {
		s.logger.Warn("batch commit partially failed",
			slog.String("project", s.project),
			slog.Int("operations", len(results)),
			slog.Int("failed", len(failed)),
		)
	} else {
		s.logger.Debug("batch commit succeeded",
			slog.String("project", s.project),
			slog.Int("operations", len(results)),
		)
	}

	return results, nil
}

// sortedKeys returns the map's keys in stable order, so validation errors
// are deterministic.
func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
