package entityhub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// FetchOptions filters what Fetch mirrors from the server.
type FetchOptions struct {
	// Kinds restricts the fetch to a subset of entity kinds. Nil fetches
	// every kind.
	Kinds []Kind

	// FolderIDs / FolderPaths restrict the folder query. A restricted fetch
	// merges into the current snapshot without pruning.
	FolderIDs   []string
	FolderPaths []string

	// IncludeInactive also mirrors entities the server has deactivated.
	IncludeInactive bool
}

// filtered reports whether the fetch covers less than the whole project,
// in which case an entity's absence from the results is not evidence that
// it no longer exists server-side.
func (o FetchOptions) filtered() bool {
	return len(o.FolderIDs) > 0 || len(o.FolderPaths) > 0
}

// pageInfo is the GraphQL cursor-pagination tail of every bulk query.
type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// entityNode is the union of all five kinds' wire fields; each query
// document selects the subset that applies.
type entityNode struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	FolderType  string         `json:"folderType"`
	TaskType    string         `json:"taskType"`
	ProductType string         `json:"productType"`
	ParentID    string         `json:"parentId"`
	FolderID    string         `json:"folderId"`
	ProductID   string         `json:"productId"`
	VersionID   string         `json:"versionId"`
	Version     int            `json:"version"`
	Status      string         `json:"status"`
	Tags        []string       `json:"tags"`
	Active      bool           `json:"active"`
	HasProducts bool           `json:"hasProducts"`
	Attrib      map[string]any `json:"attrib"`
	Data        map[string]any `json:"data"`
}

type entityPage struct {
	Edges []struct {
		Node entityNode `json:"node"`
	} `json:"edges"`
	PageInfo pageInfo `json:"pageInfo"`
}

// toEntity normalizes a wire node into an Entity of the given kind.
func (n *entityNode) toEntity(kind Kind) *Entity {
	e := &Entity{
		ID:      n.ID,
		Kind:    kind,
		Name:    n.Name,
		Label:   n.Label,
		Status:  n.Status,
		Tags:    n.Tags,
		Attribs: n.Attrib,
		Data:    n.Data,
		Active:  n.Active,
	}

	switch kind {
	case KindFolder:
		e.ParentID = n.ParentID
		e.SubType = n.FolderType
		e.HasPublishedContent = n.HasProducts
	case KindTask:
		e.ParentID = n.FolderID
		e.SubType = n.TaskType
	case KindProduct:
		e.ParentID = n.FolderID
		e.SubType = n.ProductType
	case KindVersion:
		e.ParentID = n.ProductID
		e.Version = n.Version
	case KindRepresentation:
		e.ParentID = n.VersionID
	}

	return e
}

// Fetch mirrors the project's entity tree from the server, one paginated
// bulk query per kind, run concurrently. The result merges into the hub's
// current snapshot: clean entities are replaced by server state; dirty,
// new, and pending-delete entities keep their local values while their
// committed snapshot refreshes; on an unfiltered fetch, persisted entities
// missing from the server are pruned.
//
// Calling Fetch twice with identical options and no intervening local edits
// yields an identical snapshot.
func (h *Hub) Fetch(ctx context.Context, opts FetchOptions) error {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = allKinds
	}

	for _, k := range kinds {
		if !k.Valid() {
			return fmt.Errorf("entityhub: cannot fetch kind %q", k)
		}
	}

	fetched := make([][]*Entity, len(kinds))

	g, gctx := errgroup.WithContext(ctx)

	for i, kind := range kinds {
		g.Go(func() error {
			vars := map[string]any{}

			if kind == KindFolder {
				if len(opts.FolderIDs) > 0 {
					vars["ids"] = opts.FolderIDs
				}

				if len(opts.FolderPaths) > 0 {
					vars["paths"] = opts.FolderPaths
				}
			}

			ents, err := h.fetchKind(gctx, kind, vars, opts.IncludeInactive)
			if err != nil {
				return err
			}

			fetched[i] = ents

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	total := 0

	for i, kind := range kinds {
		h.merge(kind, fetched[i], !opts.filtered())
		total += len(fetched[i])
	}

	// Any cached path may now be stale; recompute lazily.
	h.pathCache = map[string]string{}

	h.logger.Debug("project fetched",
		slog.String("project", h.project),
		slog.Int("kinds", len(kinds)),
		slog.Int("entities", total),
	)

	return nil
}

// GetOrFetch returns the entity with the given identifier, issuing a
// targeted per-ID query when the hub does not know it yet — lazy population
// without a full-project load. Kinds narrows which queries are tried; empty
// tries all of them in hierarchy order.
func (h *Hub) GetOrFetch(ctx context.Context, id string, kinds ...Kind) (*Entity, error) {
	if e, ok := h.entities[id]; ok {
		return e, nil
	}

	if len(kinds) == 0 {
		kinds = allKinds
	}

	for _, kind := range kinds {
		ents, err := h.fetchKind(ctx, kind, map[string]any{"ids": []string{id}}, true)
		if err != nil {
			return nil, err
		}

		if len(ents) > 0 {
			e := ents[0]
			h.insert(e)
			h.snapshots[e.ID] = e.Clone()

			return e, nil
		}
	}

	return nil, fmt.Errorf("entityhub: %s: %w", id, ErrUnknownEntity)
}

// fetchKind pages through one kind's bulk query and returns the normalized
// entities. extra carries kind-specific filter variables.
func (h *Hub) fetchKind(ctx context.Context, kind Kind, extra map[string]any, includeInactive bool) ([]*Entity, error) {
	var (
		out   []*Entity
		after string
	)

	for {
		vars := map[string]any{
			"projectName": h.project,
			"first":       h.pageSize,
		}

		for k, v := range extra {
			vars[k] = v
		}

		if !includeInactive {
			vars["active"] = true
		}

		if after != "" {
			vars["after"] = after
		}

		var envelope struct {
			Project map[string]json.RawMessage `json:"project"`
		}

		if err := h.conn.QueryGraphQL(ctx, kindQuery[kind], vars, &envelope); err != nil {
			return nil, err
		}

		if envelope.Project == nil {
			return nil, fmt.Errorf("entityhub: project %q not found on server", h.project)
		}

		var page entityPage
		if err := json.Unmarshal(envelope.Project[kindQueryField[kind]], &page); err != nil {
			return nil, fmt.Errorf("entityhub: decoding %s page: %w", kind, err)
		}

		for _, edge := range page.Edges {
			out = append(out, edge.Node.toEntity(kind))
		}

		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			return out, nil
		}

		after = page.PageInfo.EndCursor
	}
}

// merge folds one kind's fetch results into the graph. prune removes
// persisted entities of that kind that the (unfiltered) fetch no longer
// saw — they are gone server-side, and a pending local delete for them is
// already moot.
func (h *Hub) merge(kind Kind, fetched []*Entity, prune bool) {
	seen := make(map[string]bool, len(fetched))

	for _, f := range fetched {
		seen[f.ID] = true

		existing, ok := h.entities[f.ID]
		if !ok {
			h.insert(f)
			h.snapshots[f.ID] = f.Clone()

			continue
		}

		// Local edits survive a fetch: only the committed snapshot
		// refreshes. Edits the server already reflects stop being dirty.
		if h.dirtySet[f.ID] || h.deletedSet[f.ID] {
			h.snapshots[f.ID] = f.Clone()

			if h.dirtySet[f.ID] && len(h.diffChanges(existing)) == 0 {
				delete(h.dirtySet, f.ID)
				delete(h.removedAttribs, f.ID)
				delete(h.removedData, f.ID)
			}

			continue
		}

		// Clean entity: replace in place so caller-held pointers see the
		// refresh. The children index follows the parent edge.
		moved := existing.ParentID != f.ParentID
		if moved {
			h.unlink(existing)
		}

		seq := existing.seq
		*existing = *f
		existing.seq = seq

		if moved {
			h.link(existing)
		}

		h.snapshots[f.ID] = f.Clone()
	}

	if !prune {
		return
	}

	for id, e := range h.entities {
		if e.Kind == kind && e.IsPersisted() && !seen[id] {
			h.remove(e)
		}
	}
}
