package entityhub

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	slate "github.com/slatehq/slate-go"
	"github.com/slatehq/slate-go/operations"
)

// fetchPageSize is the default page size for GraphQL bulk queries.
const defaultPageSize = 300

// Client is the slice of the connection a hub needs: REST for the project
// record and batch commits, GraphQL for bulk reads. *slate.Connection
// satisfies it.
type Client interface {
	Get(ctx context.Context, path string, opts ...slate.RequestOption) (*slate.Response, error)
	Post(ctx context.Context, path string, body any, opts ...slate.RequestOption) (*slate.Response, error)
	QueryGraphQL(ctx context.Context, query string, variables map[string]any, out any) error
}

// Hub owns one project's entity graph: a local mirror populated by Fetch,
// edited through AddNew / UpdateEntity / DeleteEntity, and reconciled with
// the server by CommitChanges.
//
// A Hub does no internal locking. It is built for single-owner mutation;
// callers that share one Hub across goroutines supply their own mutual
// exclusion. Independent hubs for the same project are fine but are never
// kept in sync with each other.
type Hub struct {
	conn    Client
	project string
	logger  *slog.Logger

	pageSize int

	entities map[string]*Entity
	children map[string][]string // parent ID -> ordered child IDs; "" holds roots

	// snapshots holds the last server-confirmed state of each persisted
	// entity. CommitChanges diffs live entities against these.
	snapshots map[string]*Entity

	newSet     map[string]bool
	dirtySet   map[string]bool
	deletedSet map[string]bool

	// Explicitly removed attribute/data keys, remembered separately from the
	// live maps so removals serialize as JSON null on commit.
	removedAttribs map[string]map[string]bool
	removedData    map[string]map[string]bool

	// pathCache memoizes hierarchical paths for folders and tasks. Entries
	// are invalidated when a name or parent changes anywhere above them.
	pathCache map[string]string

	projectInfo *Project

	seq int // insertion counter, for deterministic operation ordering
}

// Option configures a Hub at construction time.
type Option func(*Hub)

// WithLogger installs a structured logger. Nil falls back to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithPageSize overrides the GraphQL bulk-fetch page size.
func WithPageSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.pageSize = n
		}
	}
}

// New creates a Hub for one project on one connection. The hub starts
// empty; call Fetch to mirror the server's tree, or AddNew to build one
// from scratch.
func New(conn Client, project string, opts ...Option) (*Hub, error) {
	if conn == nil {
		return nil, fmt.Errorf("entityhub: nil connection")
	}

	if project == "" {
		return nil, fmt.Errorf("entityhub: empty project name")
	}

	h := &Hub{
		conn:           conn,
		project:        project,
		logger:         slog.Default(),
		pageSize:       defaultPageSize,
		entities:       map[string]*Entity{},
		children:       map[string][]string{},
		snapshots:      map[string]*Entity{},
		newSet:         map[string]bool{},
		dirtySet:       map[string]bool{},
		deletedSet:     map[string]bool{},
		removedAttribs: map[string]map[string]bool{},
		removedData:    map[string]map[string]bool{},
		pathCache:      map[string]string{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// ProjectName returns the project this hub mirrors.
func (h *Hub) ProjectName() string {
	return h.project
}

// Get returns the entity with the given identifier, or false when the hub
// does not know it. Entities pending deletion are still returned; check
// IsPendingDelete.
func (h *Hub) Get(id string) (*Entity, bool) {
	e, ok := h.entities[id]
	return e, ok
}

// Children returns the direct children of the given entity in insertion
// order. An empty id returns the root-level folders.
func (h *Hub) Children(id string) []*Entity {
	ids := h.children[id]
	out := make([]*Entity, 0, len(ids))

	for _, cid := range ids {
		if e, ok := h.entities[cid]; ok {
			out = append(out, e)
		}
	}

	return out
}

// Roots returns the root-level folders.
func (h *Hub) Roots() []*Entity {
	return h.Children("")
}

// IsNew reports whether the entity was created locally and has not been
// committed yet.
func (h *Hub) IsNew(id string) bool {
	return h.newSet[id]
}

// IsDirty reports whether the entity carries uncommitted edits.
func (h *Hub) IsDirty(id string) bool {
	return h.dirtySet[id]
}

// IsPendingDelete reports whether the entity is marked for deletion.
func (h *Hub) IsPendingDelete(id string) bool {
	return h.deletedSet[id]
}

// HasPendingChanges reports whether CommitChanges would submit anything.
func (h *Hub) HasPendingChanges() bool {
	return len(h.newSet) > 0 || len(h.dirtySet) > 0 || len(h.deletedSet) > 0
}

// EntityOption seeds optional fields of a newly added entity.
type EntityOption func(*Entity)

// WithLabel sets the display label.
func WithLabel(label string) EntityOption {
	return func(e *Entity) {
		e.Label = label
	}
}

// WithSubType sets the folder type, task type, or product type.
func WithSubType(subType string) EntityOption {
	return func(e *Entity) {
		e.SubType = subType
	}
}

// WithStatus sets the initial status.
func WithStatus(status string) EntityOption {
	return func(e *Entity) {
		e.Status = status
	}
}

// WithTags sets the initial tags.
func WithTags(tags ...string) EntityOption {
	return func(e *Entity) {
		e.Tags = tags
	}
}

// WithAttribs seeds the attribute map.
func WithAttribs(attribs map[string]any) EntityOption {
	return func(e *Entity) {
		e.Attribs = attribs
	}
}

// WithData seeds the free-form data map.
func WithData(data map[string]any) EntityOption {
	return func(e *Entity) {
		e.Data = data
	}
}

// WithVersionNumber sets the iteration number of a version entity.
// Negative marks a hero version.
func WithVersionNumber(n int) EntityOption {
	return func(e *Entity) {
		e.Version = n
	}
}

// AddNew creates an entity locally under the given parent and marks it for
// creation on the next CommitChanges. The identifier it returns is
// temporary ("tmp-" prefixed) until the create commits.
//
// An empty parentID is legal only for folders (root level). An illegal
// parent/child kind pairing fails with ErrInvalidHierarchy before anything
// touches the network. Version entities with an empty name are named from
// their version number ("v013", "hero").
func (h *Hub) AddNew(kind Kind, name, parentID string, opts ...EntityOption) (*Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("entityhub: unknown entity kind %q", kind)
	}

	e := &Entity{
		ID:       operations.NewTempID(),
		Kind:     kind,
		Name:     name,
		ParentID: parentID,
		Active:   true,
	}

	for _, opt := range opts {
		opt(e)
	}

	if kind == KindVersion && e.Name == "" {
		e.Name = formatVersionName(e.Version)
	}

	if err := slate.ValidateEntityName(e.Name); err != nil {
		return nil, err
	}

	parentKind := KindProject

	if parentID != "" {
		parent, ok := h.entities[parentID]
		if !ok {
			return nil, fmt.Errorf("entityhub: parent %s: %w", parentID, ErrUnknownEntity)
		}

		if h.deletedSet[parentID] {
			return nil, fmt.Errorf("entityhub: parent %s: %w", parentID, ErrPendingDelete)
		}

		parentKind = parent.Kind
	}

	if !CanContain(parentKind, kind) {
		return nil, fmt.Errorf("entityhub: %s cannot contain %s: %w",
			parentKind, kind, ErrInvalidHierarchy)
	}

	if err := h.validateSubType(e.Kind, e.SubType); err != nil {
		return nil, err
	}

	h.insert(e)
	h.newSet[e.ID] = true

	h.logger.Debug("entity added",
		slog.String("project", h.project),
		slog.String("kind", string(kind)),
		slog.String("name", e.Name),
		slog.String("id", e.ID),
	)

	return e, nil
}

// Update is a pointer-field patch for UpdateEntity. Nil fields are left
// untouched. SetAttribs/SetData write keys; RemoveAttribs/RemoveData delete
// keys and serialize as JSON null on commit so the server clears them too.
type Update struct {
	Name     *string
	Label    *string
	SubType  *string
	Status   *string
	ParentID *string
	Version  *int
	Active   *bool
	Tags     *[]string

	SetAttribs    map[string]any
	RemoveAttribs []string
	SetData       map[string]any
	RemoveData    []string
}

// UpdateEntity applies a patch to one entity and marks it dirty. The patch
// is validated as a whole before anything is applied. A parent reassignment
// checks the new parent against the capability table, re-links the tree,
// and invalidates the cached hierarchical paths of the entity and
// everything below it, so no stale derived context survives the move.
func (h *Hub) UpdateEntity(id string, patch Update) error {
	e, ok := h.entities[id]
	if !ok {
		return fmt.Errorf("entityhub: %s: %w", id, ErrUnknownEntity)
	}

	if h.deletedSet[id] {
		return fmt.Errorf("entityhub: %s: %w", id, ErrPendingDelete)
	}

	if e.Kind == KindFolder && e.HasPublishedContent &&
		(patch.Name != nil || patch.ParentID != nil) {
		return fmt.Errorf("entityhub: folder %s: %w", e.Name, ErrImmutableEntity)
	}

	// Validate the whole patch before touching the entity: a rejected patch
	// must leave the graph exactly as it found it.
	if patch.Name != nil && *patch.Name != e.Name {
		if err := slate.ValidateEntityName(*patch.Name); err != nil {
			return err
		}
	}

	if patch.ParentID != nil && *patch.ParentID != e.ParentID {
		if err := h.checkReparent(e, *patch.ParentID); err != nil {
			return err
		}
	}

	if patch.SubType != nil {
		if err := h.validateSubType(e.Kind, *patch.SubType); err != nil {
			return err
		}
	}

	if patch.ParentID != nil && *patch.ParentID != e.ParentID {
		h.unlink(e)
		e.ParentID = *patch.ParentID
		h.link(e)
		h.invalidateSubtreePaths(e.ID)
	}

	if patch.Name != nil && *patch.Name != e.Name {
		e.Name = *patch.Name
		h.invalidateSubtreePaths(e.ID)
	}

	if patch.Label != nil {
		e.Label = *patch.Label
	}

	if patch.SubType != nil {
		e.SubType = *patch.SubType
	}

	if patch.Status != nil {
		e.Status = *patch.Status
	}

	if patch.Version != nil && e.Kind == KindVersion {
		e.Version = *patch.Version
	}

	if patch.Active != nil {
		e.Active = *patch.Active
	}

	if patch.Tags != nil {
		e.Tags = append([]string(nil), (*patch.Tags)...)
	}

	if len(patch.SetAttribs) > 0 {
		if e.Attribs == nil {
			e.Attribs = map[string]any{}
		}

		for k, v := range patch.SetAttribs {
			e.Attribs[k] = v
			delete(h.removedAttribs[id], k)
		}
	}

	for _, k := range patch.RemoveAttribs {
		delete(e.Attribs, k)
		h.rememberRemoval(h.removedAttribs, id, k)
	}

	if len(patch.SetData) > 0 {
		if e.Data == nil {
			e.Data = map[string]any{}
		}

		for k, v := range patch.SetData {
			e.Data[k] = v
			delete(h.removedData[id], k)
		}
	}

	for _, k := range patch.RemoveData {
		delete(e.Data, k)
		h.rememberRemoval(h.removedData, id, k)
	}

	if !h.newSet[id] {
		h.dirtySet[id] = true
	}

	return nil
}

// DeleteEntity marks an entity and all its descendants for deletion. An
// entity that was never persisted is removed immediately with no server
// call; persisted entities enter the pending-delete set and leave the graph
// once their delete commits. Descendants are always ordered before their
// ancestors in the submitted plan.
func (h *Hub) DeleteEntity(id string) error {
	e, ok := h.entities[id]
	if !ok {
		return fmt.Errorf("entityhub: %s: %w", id, ErrUnknownEntity)
	}

	subtree := h.subtreeDepthFirst(id)

	// Validate the whole subtree before mutating anything.
	for _, sid := range subtree {
		se := h.entities[sid]
		if se.Kind == KindFolder && se.HasPublishedContent {
			return fmt.Errorf("entityhub: folder %s: %w", se.Name, ErrImmutableEntity)
		}
	}

	for _, sid := range subtree {
		se := h.entities[sid]

		if !se.IsPersisted() {
			h.remove(se)
			continue
		}

		h.deletedSet[sid] = true
		delete(h.dirtySet, sid)
	}

	h.logger.Debug("entity marked for deletion",
		slog.String("project", h.project),
		slog.String("kind", string(e.Kind)),
		slog.String("id", id),
		slog.Int("subtree", len(subtree)),
	)

	return nil
}

// Path returns the hierarchical path of a folder ("/seq/sh010") or the
// context path of a task ("/seq/sh010/animation"). Paths are cached and
// invalidated whenever a name or parent changes anywhere on the ancestor
// chain. Other kinds have no hierarchical path.
func (h *Hub) Path(id string) (string, error) {
	e, ok := h.entities[id]
	if !ok {
		return "", fmt.Errorf("entityhub: %s: %w", id, ErrUnknownEntity)
	}

	if e.Kind != KindFolder && e.Kind != KindTask {
		return "", fmt.Errorf("entityhub: %s entities have no hierarchical path", e.Kind)
	}

	if p, ok := h.pathCache[id]; ok {
		return p, nil
	}

	var parts []string

	for cur := e; ; {
		parts = append(parts, cur.Name)

		if cur.ParentID == "" {
			break
		}

		parent, ok := h.entities[cur.ParentID]
		if !ok {
			return "", fmt.Errorf("entityhub: parent %s of %s: %w",
				cur.ParentID, cur.ID, ErrUnknownEntity)
		}

		cur = parent
	}

	// parts was collected leaf-first.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	p := "/" + strings.Join(parts, "/")
	h.pathCache[id] = p

	return p, nil
}

// checkReparent validates a parent change without applying it.
func (h *Hub) checkReparent(e *Entity, newParentID string) error {
	parentKind := KindProject

	if newParentID != "" {
		parent, ok := h.entities[newParentID]
		if !ok {
			return fmt.Errorf("entityhub: parent %s: %w", newParentID, ErrUnknownEntity)
		}

		if h.deletedSet[newParentID] {
			return fmt.Errorf("entityhub: parent %s: %w", newParentID, ErrPendingDelete)
		}

		parentKind = parent.Kind

		// Walk up from the new parent; reaching e means the move would
		// create a cycle.
		for cur := parent; cur != nil; {
			if cur.ID == e.ID {
				return fmt.Errorf("entityhub: moving %s under its own descendant %s: %w",
					e.ID, newParentID, ErrInvalidHierarchy)
			}

			cur = h.entities[cur.ParentID]
		}
	}

	if !CanContain(parentKind, e.Kind) {
		return fmt.Errorf("entityhub: %s cannot contain %s: %w",
			parentKind, e.Kind, ErrInvalidHierarchy)
	}

	return nil
}

// validateSubType checks a candidate subtype against the project record,
// when it has been loaded. Before FetchProject the check is skipped — the
// server rejects unknown types at commit anyway.
func (h *Hub) validateSubType(kind Kind, subType string) error {
	if h.projectInfo == nil || subType == "" {
		return nil
	}

	var known []string

	switch kind {
	case KindFolder:
		known = h.projectInfo.FolderTypes
	case KindTask:
		known = h.projectInfo.TaskTypes
	default:
		return nil
	}

	if len(known) == 0 {
		return nil
	}

	for _, k := range known {
		if k == subType {
			return nil
		}
	}

	return fmt.Errorf("entityhub: project %s has no %s type %q",
		h.project, kind, subType)
}

// insert adds a brand-new or freshly fetched entity to the graph.
func (h *Hub) insert(e *Entity) {
	h.seq++
	e.seq = h.seq
	h.entities[e.ID] = e
	h.link(e)
}

// remove drops an entity and all its local bookkeeping.
func (h *Hub) remove(e *Entity) {
	h.unlink(e)
	delete(h.entities, e.ID)
	delete(h.snapshots, e.ID)
	delete(h.newSet, e.ID)
	delete(h.dirtySet, e.ID)
	delete(h.deletedSet, e.ID)
	delete(h.removedAttribs, e.ID)
	delete(h.removedData, e.ID)
	delete(h.pathCache, e.ID)
	delete(h.children, e.ID)
}

func (h *Hub) link(e *Entity) {
	h.children[e.ParentID] = append(h.children[e.ParentID], e.ID)
}

func (h *Hub) unlink(e *Entity) {
	siblings := h.children[e.ParentID]

	for i, id := range siblings {
		if id == e.ID {
			h.children[e.ParentID] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
}

// subtreeDepthFirst returns the subtree rooted at id with children before
// their parents, the order deletes must be submitted in.
func (h *Hub) subtreeDepthFirst(id string) []string {
	var out []string

	var walk func(string)
	walk = func(cur string) {
		for _, child := range append([]string(nil), h.children[cur]...) {
			walk(child)
		}

		out = append(out, cur)
	}

	walk(id)

	return out
}

// invalidateSubtreePaths drops cached paths for an entity and everything
// below it. Called on any name or parent change.
func (h *Hub) invalidateSubtreePaths(id string) {
	delete(h.pathCache, id)

	for _, child := range h.children[id] {
		h.invalidateSubtreePaths(child)
	}
}

// depth returns the distance from the tree root, used to order creates
// parent-first and deletes child-first.
func (h *Hub) depth(id string) int {
	d := 0

	for e := h.entities[id]; e != nil && e.ParentID != ""; e = h.entities[e.ParentID] {
		d++

		if d > len(h.entities) {
			break // defensive: corrupted parent chain
		}
	}

	return d
}

// rememberRemoval records one explicitly removed key.
func (h *Hub) rememberRemoval(store map[string]map[string]bool, id, key string) {
	if store[id] == nil {
		store[id] = map[string]bool{}
	}

	store[id][key] = true
}

// sortBySeq orders ids by hub insertion order, for deterministic sessions.
func (h *Hub) sortBySeq(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return h.entities[ids[i]].seq < h.entities[ids[j]].seq
	})
}
