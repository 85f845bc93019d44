package entityhub

import "errors"

// Sentinel errors for local graph validation. These are raised before any
// network traffic happens; use errors.Is to check.
var (
	// ErrInvalidHierarchy means the requested parent kind cannot legally
	// contain the requested child kind, or a reparent would create a cycle.
	ErrInvalidHierarchy = errors.New("entityhub: invalid parent/child pairing")

	// ErrUnknownEntity means the identifier is not present in the hub's
	// snapshot. Use GetOrFetch to populate single entities lazily.
	ErrUnknownEntity = errors.New("entityhub: unknown entity")

	// ErrImmutableEntity means the entity refuses the requested change —
	// a folder with published content cannot be renamed, moved, or deleted.
	ErrImmutableEntity = errors.New("entityhub: entity has published content")

	// ErrPendingDelete means the entity is already marked for deletion and
	// cannot take further edits until the delete commits or is abandoned.
	ErrPendingDelete = errors.New("entityhub: entity is pending deletion")
)
