// Package repositories implements the compound persistence contracts on
// PostgreSQL.  The file artifact store stays the source of truth for
// phase restarts; the database store exists so downstream consumers can
// query the catalog without parsing artifacts.
package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// CatalogRepository is the PostgreSQL compound.CatalogRepository.
type CatalogRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewCatalogRepository returns a CatalogRepository over the given pool.
func NewCatalogRepository(pool *pgxpool.Pool, logger logging.Logger) *CatalogRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CatalogRepository{pool: pool, logger: logger.Named("catalog_repo")}
}

// SaveVersion replaces a catalog version inside one transaction: readers
// never observe a half-written version.
func (r *CatalogRepository) SaveVersion(ctx context.Context, version string, entries []*compound.Record) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "beginning catalog transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM compound_catalog WHERE version = $1`, version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "clearing catalog version").
			WithDetail("version=" + version)
	}

	for _, entry := range entries {
		names, err := json.Marshal(entry.Names)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encoding names").
				WithDetail("key=" + entry.IdentityKey)
		}
		provenance, err := json.Marshal(entry.Provenance)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encoding provenance").
				WithDetail("key=" + entry.IdentityKey)
		}
		properties, err := json.Marshal(entry.Properties)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encoding properties").
				WithDetail("key=" + entry.IdentityKey)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO compound_catalog
				(version, identity_key, cas_number, preferred_name, names, status, cas_source, provenance, properties)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9)`,
			version,
			entry.IdentityKey,
			entry.CASNumber,
			entry.PreferredName,
			names,
			string(entry.Status),
			string(entry.CASSource),
			provenance,
			properties,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "inserting catalog entry").
				WithDetail("key=" + entry.IdentityKey)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "committing catalog version")
	}

	r.logger.Info("catalog version saved",
		logging.String("version", version), logging.Int("entries", len(entries)))
	return nil
}

const catalogColumns = `identity_key, COALESCE(cas_number, ''), preferred_name, names, status, COALESCE(cas_source, ''), provenance, properties`

// LoadVersion retrieves a complete catalog version sorted by identity key.
func (r *CatalogRepository) LoadVersion(ctx context.Context, version string) ([]*compound.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+catalogColumns+`
		FROM compound_catalog
		WHERE version = $1
		ORDER BY identity_key`, version)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "querying catalog version").
			WithDetail("version=" + version)
	}
	defer rows.Close()

	var entries []*compound.Record
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "reading catalog rows")
	}
	if len(entries) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "catalog version not found").
			WithDetail("version=" + version)
	}
	return entries, nil
}

// FindByKey retrieves one entry from a version.
func (r *CatalogRepository) FindByKey(ctx context.Context, version, identityKey string) (*compound.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+catalogColumns+`
		FROM compound_catalog
		WHERE version = $1 AND identity_key = $2`, version, identityKey)

	entry, err := scanEntry(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeCompoundNotFound, "compound not found").
				WithDetail("version=" + version + " key=" + identityKey)
		}
		return nil, err
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*compound.Record, error) {
	var (
		entry      compound.Record
		status     string
		casSource  string
		names      []byte
		provenance []byte
		properties []byte
	)
	if err := row.Scan(
		&entry.IdentityKey,
		&entry.CASNumber,
		&entry.PreferredName,
		&names,
		&status,
		&casSource,
		&provenance,
		&properties,
	); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scanning catalog row")
	}
	entry.Status = ctypes.Status(status)
	entry.CASSource = ctypes.SourceType(casSource)
	if err := json.Unmarshal(names, &entry.Names); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decoding names")
	}
	if err := json.Unmarshal(provenance, &entry.Provenance); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decoding provenance")
	}
	if err := json.Unmarshal(properties, &entry.Properties); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decoding properties")
	}
	return &entry, nil
}

var _ compound.CatalogRepository = (*CatalogRepository)(nil)
