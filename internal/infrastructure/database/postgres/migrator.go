package postgres

import (
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file source driver

	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// RunMigrations applies all pending schema migrations.  Called on startup
// whenever the database store is enabled; a schema this code cannot reach
// is a configuration problem, so migration failures are fatal.
func RunMigrations(dbURL, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "creating migrator").
			WithDetail("source=" + migrationsPath)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "applying migrations")
	}
	return nil
}

// RollbackMigrations reverts the given number of migration steps.  Meant
// for development and test environments.
func RollbackMigrations(dbURL, migrationsPath string, steps int) error {
	if steps <= 0 {
		return errors.Newf(errors.ErrCodeBadRequest, "rollback steps must be positive, got %d", steps)
	}
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "creating migrator").
			WithDetail("source=" + migrationsPath)
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "rolling back migrations")
	}
	return nil
}
