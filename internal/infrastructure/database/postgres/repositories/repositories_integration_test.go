//go:build integration

package repositories_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/database/postgres"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

func setupTestDB(t *testing.T) *postgres.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "mskb",
				"POSTGRES_PASSWORD": "mskb",
				"POSTGRES_DB":       "mskb_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "mskb",
		Password: "mskb",
		DBName:   "mskb_test",
		SSLMode:  "disable",
		MaxConns: 4,
	}

	_, thisFile, _, _ := runtime.Caller(0)
	migrations := "file://" + filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "..", "..", "migrations")
	require.NoError(t, postgres.RunMigrations(postgres.DSN(cfg), migrations))

	pool, err := postgres.NewPool(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestCatalogRepository_Integration(t *testing.T) {
	pool := setupTestDB(t)
	repo := repositories.NewCatalogRepository(pool.Raw(), nil)
	ctx := context.Background()

	v, err := compound.NewVerified("50-00-0", []string{"Formaldehyde", "Methanal"})
	require.NoError(t, err)
	v.Properties.MolecularFormula = "CH2O"
	o, err := compound.NewOrphan("Mystery compound", "12-34-5")
	require.NoError(t, err)

	require.NoError(t, repo.SaveVersion(ctx, "v1", []*compound.Record{v, o}))

	loaded, err := repo.LoadVersion(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "50-00-0", loaded[0].IdentityKey)
	assert.Equal(t, ctypes.StatusVerified, loaded[0].Status)
	assert.Equal(t, []string{"Formaldehyde", "Methanal"}, loaded[0].Names)
	assert.Equal(t, "CH2O", loaded[0].Properties.MolecularFormula)
	assert.Equal(t, ctypes.StatusOrphan, loaded[1].Status)
	assert.Empty(t, loaded[1].CASNumber)
	assert.NotEmpty(t, loaded[1].Provenance)

	// Saving again replaces, not duplicates.
	require.NoError(t, repo.SaveVersion(ctx, "v1", []*compound.Record{v}))
	loaded, err = repo.LoadVersion(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	got, err := repo.FindByKey(ctx, "v1", "50-00-0")
	require.NoError(t, err)
	assert.Equal(t, "Methanal", got.PreferredName)

	_, err = repo.FindByKey(ctx, "v1", "absent")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCompoundNotFound))

	_, err = repo.LoadVersion(ctx, "v9")
	assert.True(t, errors.IsNotFound(err))
}

func TestConflictRepository_Integration(t *testing.T) {
	pool := setupTestDB(t)
	repo := repositories.NewConflictRepository(pool.Raw(), nil)
	ctx := context.Background()

	conflict := compound.NewUnresolvedConflict("xylene", "cas_number", []compound.CompetingValue{
		{Source: ctypes.SourceAPI, Value: "95-47-6"},
		{Source: ctypes.SourceAPI, Value: "108-38-3"},
	})
	require.NoError(t, repo.Append(ctx, []compound.Conflict{conflict}))
	require.NoError(t, repo.Append(ctx, nil))

	listed, err := repo.ListUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "xylene", listed[0].CompoundKey)
	assert.Equal(t, ctypes.ResolutionUnresolved, listed[0].Resolution)
	require.Len(t, listed[0].CompetingValues, 2)
	assert.Equal(t, ctypes.SourceAPI, listed[0].CompetingValues[0].Source)
}
