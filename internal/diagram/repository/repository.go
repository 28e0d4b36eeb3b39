package repository

import (
	"context"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
)

// Repository is the persistence contract for diagrams and their revision
// history. Create and ApplyUpdate must write the diagram row and its
// revision atomically; ApplyUpdate must be a single conditional operation
// keyed on the expected version (never read-then-write).
type Repository interface {
	// Create persists a new diagram at version 1 together with revision 1.
	Create(ctx context.Context, d *diagram.Diagram) error

	// Get returns the diagram by id. Soft-deleted diagrams are only
	// returned when includeDeleted is set. Missing -> diagram.ErrNotFound.
	Get(ctx context.Context, id string, includeDeleted bool) (*diagram.Diagram, error)

	// List returns a payload-free page matching the filter, ordered by id.
	List(ctx context.Context, f diagram.ListFilter) (diagram.Page, error)

	// ApplyUpdate performs the compare-and-swap save: iff the live diagram's
	// version equals expected, bump the version, apply the changes, and
	// append the matching revision, all atomically. On a version mismatch
	// it returns *diagram.ConflictError carrying the current state. Missing
	// or soft-deleted -> diagram.ErrNotFound.
	ApplyUpdate(ctx context.Context, id string, in diagram.UpdateInput) (*diagram.Diagram, error)

	// SoftDelete marks a live diagram deleted. History is untouched.
	SoftDelete(ctx context.Context, id string) error

	// Restore clears the soft-delete marker on a deleted diagram.
	Restore(ctx context.Context, id string) error

	// ListRevisions returns revision metadata (no payload) ordered by
	// revision number ascending.
	ListRevisions(ctx context.Context, diagramID string) ([]diagram.Revision, error)

	// GetRevision returns one revision including its payload snapshot.
	GetRevision(ctx context.Context, diagramID string, rev int64) (*diagram.Revision, error)
}
