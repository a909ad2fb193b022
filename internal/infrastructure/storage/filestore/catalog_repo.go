package filestore

import (
	"context"
	"fmt"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// CatalogRepository is the file-backed compound.CatalogRepository.  Each
// version is one JSON artifact; this store is the source of truth for
// phase restarts regardless of whether the database store is enabled.
type CatalogRepository struct {
	store *Store
}

// NewCatalogRepository returns a CatalogRepository over the given store.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{store: store}
}

func catalogArtifact(version string) string {
	return fmt.Sprintf("compound_catalog_%s.json", version)
}

// SaveVersion writes a complete catalog version, replacing any previous
// content.
func (r *CatalogRepository) SaveVersion(_ context.Context, version string, entries []*compound.Record) error {
	return r.store.SaveJSON(catalogArtifact(version), entries)
}

// LoadVersion reads a complete catalog version.
func (r *CatalogRepository) LoadVersion(_ context.Context, version string) ([]*compound.Record, error) {
	var entries []*compound.Record
	if err := r.store.LoadJSON(catalogArtifact(version), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FindByKey scans a catalog version for one identity key.
func (r *CatalogRepository) FindByKey(ctx context.Context, version, identityKey string) (*compound.Record, error) {
	entries, err := r.LoadVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IdentityKey == identityKey {
			return entry, nil
		}
	}
	return nil, errors.New(errors.ErrCodeCompoundNotFound, "compound not found").
		WithDetail("version=" + version + " key=" + identityKey)
}

var _ compound.CatalogRepository = (*CatalogRepository)(nil)
