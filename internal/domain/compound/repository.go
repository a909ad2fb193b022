// Package compound defines the persistence contracts for the compound
// catalog and the conflict trail.
package compound

import "context"

// CatalogRepository is the persistence contract for catalog entries.
// The file artifact store and the PostgreSQL store both implement it; the
// pipeline writes through whichever is configured.  Implementations must
// preserve the sorted-by-identity-key emission order on List.
type CatalogRepository interface {
	// SaveVersion persists a complete catalog under the given version label
	// ("v1" after the build phase, "v2" after fusion), replacing any
	// previous content of that version.
	SaveVersion(ctx context.Context, version string, entries []*Record) error

	// LoadVersion retrieves a complete catalog version sorted by identity
	// key.  Returns ErrCodeNotFound when the version has never been saved.
	LoadVersion(ctx context.Context, version string) ([]*Record, error)

	// FindByKey retrieves one entry from a version by identity key.
	// Returns ErrCodeCompoundNotFound when absent.
	FindByKey(ctx context.Context, version, identityKey string) (*Record, error)
}

// ConflictRepository is the append-only persistence contract for identity
// conflicts awaiting manual review.
type ConflictRepository interface {
	// Append adds conflict rows; rows are never updated or deleted.
	Append(ctx context.Context, conflicts []Conflict) error

	// ListUnresolved returns every conflict whose resolution is still
	// "unresolved", in insertion order.
	ListUnresolved(ctx context.Context) ([]Conflict, error)
}
