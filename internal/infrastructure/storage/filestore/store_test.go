package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func TestStore_SaveAndLoadJSON(t *testing.T) {
	store := newStore(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, store.SaveJSON("stats.json", payload{Name: "index", Count: 42}))
	assert.True(t, store.Exists("stats.json"))

	var got payload
	require.NoError(t, store.LoadJSON("stats.json", &got))
	assert.Equal(t, payload{Name: "index", Count: 42}, got)
}

func TestStore_LoadMissingArtifact(t *testing.T) {
	store := newStore(t)
	var dest map[string]interface{}
	err := store.LoadJSON("never-written.json", &dest)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_SaveOverwritesAtomically(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveJSON("a.json", []int{1}))
	require.NoError(t, store.SaveJSON("a.json", []int{1, 2}))

	var got []int
	require.NoError(t, store.LoadJSON("a.json", &got))
	assert.Equal(t, []int{1, 2}, got)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(store.Path("a.json")))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestStore_CreatesNestedWorkDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deep", "work")
	_, err := NewStore(dir, nil)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCatalogRepository_RoundTrip(t *testing.T) {
	repo := NewCatalogRepository(newStore(t))
	ctx := context.Background()

	v, err := compound.NewVerified("50-00-0", []string{"Formaldehyde"})
	require.NoError(t, err)
	o, err := compound.NewOrphan("Mystery", "")
	require.NoError(t, err)

	require.NoError(t, repo.SaveVersion(ctx, "v1", []*compound.Record{v, o}))

	loaded, err := repo.LoadVersion(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "50-00-0", loaded[0].IdentityKey)
	assert.Equal(t, v.Status, loaded[0].Status)
	assert.Equal(t, v.Names, loaded[0].Names)
}

func TestCatalogRepository_VersionsIndependent(t *testing.T) {
	repo := NewCatalogRepository(newStore(t))
	ctx := context.Background()

	v, err := compound.NewVerified("50-00-0", []string{"Formaldehyde"})
	require.NoError(t, err)
	require.NoError(t, repo.SaveVersion(ctx, "v1", []*compound.Record{v}))

	_, err = repo.LoadVersion(ctx, "v2")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCatalogRepository_FindByKey(t *testing.T) {
	repo := NewCatalogRepository(newStore(t))
	ctx := context.Background()

	v, err := compound.NewVerified("50-00-0", []string{"Formaldehyde"})
	require.NoError(t, err)
	require.NoError(t, repo.SaveVersion(ctx, "v1", []*compound.Record{v}))

	got, err := repo.FindByKey(ctx, "v1", "50-00-0")
	require.NoError(t, err)
	assert.Equal(t, "Formaldehyde", got.PreferredName)

	_, err = repo.FindByKey(ctx, "v1", "nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCompoundNotFound))
}
