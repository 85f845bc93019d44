package entityhub

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"sort"

	"github.com/slatehq/slate-go/operations"
)

// CommitChanges computes the pending diff and submits it as one operations
// session: creates first (parents before children), then updates, then
// deletes (children before ancestors). The server executes each operation
// independently, so commit is partial-success by design — the per-operation
// results say which edits persisted.
//
// Reconciliation: a successful create replaces the entity's temporary
// identifier with the server-assigned one everywhere it is referenced; a
// successful update refreshes the committed snapshot; a successful delete
// unlinks the entity. A failed operation attaches the server's reason to
// its entity (CommitError) and leaves it in its pending set, so the next
// CommitChanges retries it.
func (h *Hub) CommitChanges(ctx context.Context) (operations.Results, error) {
	sess := operations.NewSession(h.project, operations.WithLogger(h.logger))
	byOp := map[string]*Entity{}

	for _, id := range h.pendingCreates() {
		e := h.entities[id]
		op := sess.Create(string(e.Kind), e.ID, h.createData(e))
		byOp[op.ID] = e
	}

	for _, id := range h.pendingUpdates() {
		e := h.entities[id]

		changes := h.diffChanges(e)
		if len(changes) == 0 {
			// Edited back to its committed state; nothing to submit.
			delete(h.dirtySet, id)
			delete(h.removedAttribs, id)
			delete(h.removedData, id)

			continue
		}

		op := sess.Update(string(e.Kind), e.ID, changes)
		byOp[op.ID] = e
	}

	for _, id := range h.pendingDeletes() {
		e := h.entities[id]
		op := sess.Delete(string(e.Kind), e.ID)
		byOp[op.ID] = e
	}

	if sess.Len() == 0 {
		return operations.Results{}, nil
	}

	results, err := sess.Commit(ctx, h.conn)
	if err != nil {
		// Transport failure: nothing reached the server, every pending set
		// is intact for retry.
		return nil, err
	}

	for _, r := range results {
		e, ok := byOp[r.OpID]
		if !ok {
			continue
		}

		switch {
		case !r.Success:
			e.CommitError = r.Detail
		case r.Type == operations.Create:
			delete(h.newSet, e.ID)

			if r.AssignedID != "" && r.AssignedID != e.ID {
				h.rewriteID(e, r.AssignedID)
			}

			e.CommitError = ""
			h.snapshots[e.ID] = e.Clone()
		case r.Type == operations.Update:
			delete(h.dirtySet, e.ID)
			delete(h.removedAttribs, e.ID)
			delete(h.removedData, e.ID)
			e.CommitError = ""
			h.snapshots[e.ID] = e.Clone()
		case r.Type == operations.Delete:
			h.remove(e)
		}
	}

	h.logger.Info("changes committed",
		slog.String("project", h.project),
		slog.Int("operations", len(results)),
		slog.Int("failed", len(results.Failed())),
	)

	return results, nil
}

// pendingCreates returns the new entities topologically sorted: a child's
// create always follows its parent's, so the server can resolve same-batch
// temporary references in submission order.
func (h *Hub) pendingCreates() []string {
	ids := make([]string, 0, len(h.newSet))
	for id := range h.newSet {
		ids = append(ids, id)
	}

	depths := make(map[string]int, len(ids))
	for _, id := range ids {
		depths[id] = h.depth(id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if depths[ids[i]] != depths[ids[j]] {
			return depths[ids[i]] < depths[ids[j]]
		}

		return h.entities[ids[i]].seq < h.entities[ids[j]].seq
	})

	return ids
}

// pendingUpdates returns the dirty persisted entities in insertion order.
func (h *Hub) pendingUpdates() []string {
	ids := make([]string, 0, len(h.dirtySet))

	for id := range h.dirtySet {
		if !h.newSet[id] && !h.deletedSet[id] {
			ids = append(ids, id)
		}
	}

	h.sortBySeq(ids)

	return ids
}

// pendingDeletes returns the marked entities deepest-first, so every
// descendant's delete precedes its ancestor's.
func (h *Hub) pendingDeletes() []string {
	ids := make([]string, 0, len(h.deletedSet))
	for id := range h.deletedSet {
		ids = append(ids, id)
	}

	depths := make(map[string]int, len(ids))
	for _, id := range ids {
		depths[id] = h.depth(id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if depths[ids[i]] != depths[ids[j]] {
			return depths[ids[i]] > depths[ids[j]]
		}

		return h.entities[ids[i]].seq < h.entities[ids[j]].seq
	})

	return ids
}

// createData builds the create payload for one new entity.
func (h *Hub) createData(e *Entity) map[string]any {
	data := map[string]any{"name": e.Name}

	if e.ParentID != "" {
		data[parentField[e.Kind]] = e.ParentID
	}

	if field, ok := subTypeField[e.Kind]; ok && e.SubType != "" {
		data[field] = e.SubType
	}

	if e.Kind == KindVersion {
		data["version"] = e.Version
	}

	if e.Label != "" {
		data["label"] = e.Label
	}

	if e.Status != "" {
		data["status"] = e.Status
	}

	if len(e.Tags) > 0 {
		data["tags"] = e.Tags
	}

	if len(e.Attribs) > 0 {
		data["attrib"] = e.Attribs
	}

	if len(e.Data) > 0 {
		data["data"] = e.Data
	}

	if !e.Active {
		data["active"] = false
	}

	return data
}

// diffChanges compares a live entity against its committed snapshot and
// returns the update payload: only the fields that changed, with explicitly
// removed attribute/data keys serialized as null.
func (h *Hub) diffChanges(e *Entity) map[string]any {
	snap := h.snapshots[e.ID]
	if snap == nil {
		snap = &Entity{}
	}

	changes := map[string]any{}

	if e.Name != snap.Name {
		changes["name"] = e.Name
	}

	if e.Label != snap.Label {
		changes["label"] = e.Label
	}

	if e.ParentID != snap.ParentID {
		changes[parentField[e.Kind]] = e.ParentID
	}

	if field, ok := subTypeField[e.Kind]; ok && e.SubType != snap.SubType {
		changes[field] = e.SubType
	}

	if e.Kind == KindVersion && e.Version != snap.Version {
		changes["version"] = e.Version
	}

	if e.Status != snap.Status {
		changes["status"] = e.Status
	}

	if e.Active != snap.Active {
		changes["active"] = e.Active
	}

	if !slices.Equal(e.Tags, snap.Tags) {
		changes["tags"] = e.Tags
	}

	if attrib := diffMaps(e.Attribs, snap.Attribs, h.removedAttribs[e.ID]); len(attrib) > 0 {
		changes["attrib"] = attrib
	}

	if data := diffMaps(e.Data, snap.Data, h.removedData[e.ID]); len(data) > 0 {
		changes["data"] = data
	}

	return changes
}

// diffMaps returns the keys of live that differ from snap, plus a null for
// every explicitly removed key.
func diffMaps(live, snap map[string]any, removed map[string]bool) map[string]any {
	var out map[string]any

	set := func(k string, v any) {
		if out == nil {
			out = map[string]any{}
		}

		out[k] = v
	}

	for k, v := range live {
		old, had := snap[k]
		if !had || !reflect.DeepEqual(v, old) {
			set(k, v)
		}
	}

	for k := range removed {
		if _, stillSet := live[k]; !stillSet {
			set(k, nil)
		}
	}

	return out
}

// rewriteID substitutes a server-assigned identifier for a temporary one
// everywhere the hub references it: the entity map, the children index
// (both as a key and inside the parent's child list), every child's
// ParentID, and the removal bookkeeping. Temporary identifiers are
// namespaced, so this is a plain substitution pass.
func (h *Hub) rewriteID(e *Entity, assigned string) {
	old := e.ID

	delete(h.entities, old)
	e.ID = assigned
	h.entities[assigned] = e

	if kids, ok := h.children[old]; ok {
		delete(h.children, old)
		h.children[assigned] = kids

		for _, childID := range kids {
			if child, ok := h.entities[childID]; ok && child.ParentID == old {
				child.ParentID = assigned
			}
		}
	}

	siblings := h.children[e.ParentID]
	for i, id := range siblings {
		if id == old {
			siblings[i] = assigned
			break
		}
	}

	if removed, ok := h.removedAttribs[old]; ok {
		delete(h.removedAttribs, old)
		h.removedAttribs[assigned] = removed
	}

	if removed, ok := h.removedData[old]; ok {
		delete(h.removedData, old)
		h.removedData[assigned] = removed
	}

	delete(h.pathCache, old)
}
