package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// ConflictRepository is the PostgreSQL compound.ConflictRepository.  Rows
// are append-only; the pipeline never updates or deletes them.
type ConflictRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewConflictRepository returns a ConflictRepository over the given pool.
func NewConflictRepository(pool *pgxpool.Pool, logger logging.Logger) *ConflictRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ConflictRepository{pool: pool, logger: logger.Named("conflict_repo")}
}

// Append inserts conflict rows.
func (r *ConflictRepository) Append(ctx context.Context, conflicts []compound.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "beginning conflict transaction")
	}
	defer tx.Rollback(ctx)

	for _, c := range conflicts {
		values, err := json.Marshal(c.CompetingValues)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encoding competing values").
				WithDetail("compound=" + c.CompoundKey)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO identity_conflicts (id, compound_key, field, competing_values, resolution)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), c.CompoundKey, c.Field, values, c.Resolution,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "inserting conflict").
				WithDetail("compound=" + c.CompoundKey)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "committing conflicts")
	}
	r.logger.Info("conflicts appended", logging.Int("rows", len(conflicts)))
	return nil
}

// ListUnresolved returns every conflict still awaiting review, in
// insertion order.
func (r *ConflictRepository) ListUnresolved(ctx context.Context) ([]compound.Conflict, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT compound_key, field, competing_values, resolution
		FROM identity_conflicts
		WHERE resolution = $1
		ORDER BY created_at`, ctypes.ResolutionUnresolved)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "querying conflicts")
	}
	defer rows.Close()

	var out []compound.Conflict
	for rows.Next() {
		var (
			c      compound.Conflict
			values []byte
		)
		if err := rows.Scan(&c.CompoundKey, &c.Field, &values, &c.Resolution); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scanning conflict row")
		}
		if err := json.Unmarshal(values, &c.CompetingValues); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decoding competing values")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "reading conflict rows")
	}
	return out, nil
}

var _ compound.ConflictRepository = (*ConflictRepository)(nil)
