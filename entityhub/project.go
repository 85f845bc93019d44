package entityhub

import (
	"context"
	"net/url"
)

// Project is the project record: the configured folder/task types and
// statuses that entities in this project may use.
type Project struct {
	Name    string
	Code    string
	Library bool

	FolderTypes []string
	TaskTypes   []string
	Statuses    []string

	Attrib map[string]any
}

// projectResponse is the wire shape of GET /api/projects/{name}.
type projectResponse struct {
	Name        string         `json:"name"`
	Code        string         `json:"code"`
	Library     bool           `json:"library"`
	FolderTypes []namedType    `json:"folderTypes"`
	TaskTypes   []namedType    `json:"taskTypes"`
	Statuses    []namedType    `json:"statuses"`
	Attrib      map[string]any `json:"attrib"`
}

type namedType struct {
	Name string `json:"name"`
}

func (r *projectResponse) toProject() Project {
	return Project{
		Name:        r.Name,
		Code:        r.Code,
		Library:     r.Library,
		FolderTypes: typeNames(r.FolderTypes),
		TaskTypes:   typeNames(r.TaskTypes),
		Statuses:    typeNames(r.Statuses),
		Attrib:      r.Attrib,
	}
}

func typeNames(types []namedType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.Name)
	}

	return out
}

// FetchProject loads the project record from the server and caches it.
// Once loaded, AddNew and UpdateEntity validate folder and task types
// against it.
func (h *Hub) FetchProject(ctx context.Context) (Project, error) {
	resp, err := h.conn.Get(ctx, "projects/"+url.PathEscape(h.project))
	if err != nil {
		return Project{}, err
	}

	var wire projectResponse
	if err := resp.DecodeJSON(&wire); err != nil {
		return Project{}, err
	}

	p := wire.toProject()
	h.projectInfo = &p

	return p, nil
}

// ProjectInfo returns the cached project record, fetching it on first use.
func (h *Hub) ProjectInfo(ctx context.Context) (Project, error) {
	if h.projectInfo != nil {
		return *h.projectInfo, nil
	}

	return h.FetchProject(ctx)
}
