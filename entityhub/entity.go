// Package entityhub maintains a locally editable mirror of one project's
// entity tree — folders, tasks, products, versions, representations — and
// reconciles local edits with the server as one batched commit. The hub
// tracks which entities are new, dirty, or marked for deletion, validates
// hierarchy rules before anything touches the network, and rewrites
// temporary identifiers once the server assigns real ones.
package entityhub

import (
	"fmt"
	"maps"
	"slices"

	"github.com/slatehq/slate-go/operations"
)

// Kind is the closed set of entity kinds in a project tree.
type Kind string

// Entity kinds, matching the server's wire values. KindProject is a
// pseudo-kind: it names the tree root as a legal parent for top-level
// folders, but the project itself is not a managed Entity.
const (
	KindProject        Kind = "project"
	KindFolder         Kind = "folder"
	KindTask           Kind = "task"
	KindProduct        Kind = "product"
	KindVersion        Kind = "version"
	KindRepresentation Kind = "representation"
)

// allKinds is the fetch order for a full project load.
var allKinds = []Kind{KindFolder, KindTask, KindProduct, KindVersion, KindRepresentation}

// validParents is the capability table: which parent kinds may contain each
// child kind. Hierarchy validation is a lookup here, never type inspection.
var validParents = map[Kind]map[Kind]bool{
	KindFolder:         {KindFolder: true, KindProject: true},
	KindTask:           {KindFolder: true},
	KindProduct:        {KindFolder: true},
	KindVersion:        {KindProduct: true},
	KindRepresentation: {KindVersion: true},
}

// parentField is the wire key carrying each kind's parent reference.
var parentField = map[Kind]string{
	KindFolder:         "parentId",
	KindTask:           "folderId",
	KindProduct:        "folderId",
	KindVersion:        "productId",
	KindRepresentation: "versionId",
}

// subTypeField is the wire key carrying each kind's subtype, for the kinds
// that have one.
var subTypeField = map[Kind]string{
	KindFolder:  "folderType",
	KindTask:    "taskType",
	KindProduct: "productType",
}

// Valid reports whether k is a managed entity kind (the project pseudo-kind
// is not).
func (k Kind) Valid() bool {
	switch k {
	case KindFolder, KindTask, KindProduct, KindVersion, KindRepresentation:
		return true
	default:
		return false
	}
}

// CanContain reports whether the capability table allows child entities of
// kind child under a parent of kind parent.
func CanContain(parent, child Kind) bool {
	return validParents[child][parent]
}

// Entity is one node of the project tree. It is a tagged variant: Kind
// selects which of the optional fields carry meaning (SubType for folders,
// tasks, and products; Version for versions; HasPublishedContent for
// folders).
//
// Read entities freely, but apply changes through Hub.UpdateEntity — direct
// field writes bypass dirty tracking and are not committed.
type Entity struct {
	// ID is server-assigned. Until the entity's create commits, it carries
	// a temporary "tmp-" prefixed identifier.
	ID   string
	Kind Kind

	Name  string
	Label string

	// ParentID is empty only for root-level folders.
	ParentID string

	// SubType is the folder type, task type, or product type.
	SubType string

	// Version is the iteration number for version entities. Negative marks
	// a hero version.
	Version int

	Status string
	Tags   []string

	Attribs map[string]any
	Data    map[string]any

	Active bool

	// HasPublishedContent is server-reported on folders. A folder with
	// published products refuses renames, reparenting, and deletion.
	HasPublishedContent bool

	// CommitError carries the server's reason for the entity's last failed
	// operation. Cleared on the next successful commit.
	CommitError string

	// seq is the hub insertion counter, used to keep session ordering
	// deterministic.
	seq int
}

// IsPersisted reports whether the entity has a server-assigned identifier.
func (e *Entity) IsPersisted() bool {
	return !operations.IsTempID(e.ID)
}

// Clone returns a copy with its own tags slice and attribute/data maps.
// Values nested inside the maps are shared.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Tags = slices.Clone(e.Tags)
	out.Attribs = maps.Clone(e.Attribs)
	out.Data = maps.Clone(e.Data)

	return &out
}

// formatVersionName renders the display name of a version entity.
func formatVersionName(version int) string {
	if version < 0 {
		return "hero"
	}

	return fmt.Sprintf("v%03d", version)
}
