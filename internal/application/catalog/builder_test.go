package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/application/identity"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/detection"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

func rec(name, cas string) detection.Record {
	r := detection.Record{}
	if name != "" {
		r[detection.FieldCompoundName] = name
	}
	if cas != "" {
		r[detection.FieldCASNumber] = cas
	}
	return r
}

func buildIndex(t *testing.T, corpus detection.Corpus) *identity.Index {
	t.Helper()
	ix := identity.NewIndex(nil)
	ix.Build(corpus)
	return ix
}

func TestBuilder_VerifiedFromPairedRecords(t *testing.T) {
	ix := buildIndex(t, detection.Corpus{
		rec("Formaldehyde", "50-00-0"),
		rec("Methanal", "50-00-0"),
	})

	entries, stats, err := NewBuilder(nil).Build(ix)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, ctypes.StatusVerified, e.Status)
	assert.Equal(t, "50-00-0", e.CASNumber)
	assert.Equal(t, "Methanal", e.PreferredName)
	assert.Equal(t, []string{"Formaldehyde", "Methanal"}, e.Names)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, 0, stats.Orphans)
}

func TestBuilder_InvalidCASDemotedToOrphan(t *testing.T) {
	// 50-00-1 fails the checksum; the identity survives as a name-keyed
	// Orphan with the raw value in provenance.
	ix := buildIndex(t, detection.Corpus{rec("Formaldehyde", "50-00-1")})

	entries, stats, err := NewBuilder(nil).Build(ix)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, ctypes.StatusOrphan, e.Status)
	assert.Empty(t, e.CASNumber)
	assert.Equal(t, "formaldehyde", e.IdentityKey)
	require.NotEmpty(t, e.Provenance)
	assert.Equal(t, "50-00-1", e.Provenance[0].Value)
	assert.Equal(t, 1, stats.InvalidCASDemoted)
}

func TestBuilder_CASOnlyGetsPlaceholderName(t *testing.T) {
	ix := buildIndex(t, detection.Corpus{rec("", "7732-18-5")})

	entries, _, err := NewBuilder(nil).Build(ix)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ctypes.StatusVerified, entries[0].Status)
	assert.Equal(t, "Unknown Compound (7732-18-5)", entries[0].PreferredName)
}

func TestBuilder_InvalidCASOnlyRejected(t *testing.T) {
	ix := buildIndex(t, detection.Corpus{rec("", "12-34-5")})

	entries, stats, err := NewBuilder(nil).Build(ix)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, stats.CASOnlyRejected)
}

func TestBuilder_NameOnlyBecomesOrphan(t *testing.T) {
	ix := buildIndex(t, detection.Corpus{
		rec("Mystery compound", ""),
		rec("Ethanol", "64-17-5"),
		rec("ethanol", ""), // recovered by the paired record, not an orphan
	})

	entries, stats, err := NewBuilder(nil).Build(ix)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "64-17-5", entries[0].IdentityKey)
	assert.Equal(t, "mystery compound", entries[1].IdentityKey)
	assert.Equal(t, ctypes.StatusOrphan, entries[1].Status)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, 1, stats.Orphans)
}

func TestBuilder_SortedByIdentityKey(t *testing.T) {
	ix := buildIndex(t, detection.Corpus{
		rec("Water", "7732-18-5"),
		rec("Formaldehyde", "50-00-0"),
		rec("Zeta mystery", ""),
		rec("Alpha mystery", ""),
	})

	entries, _, err := NewBuilder(nil).Build(ix)
	require.NoError(t, err)

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.IdentityKey)
	}
	assert.Equal(t, []string{"50-00-0", "7732-18-5", "alpha mystery", "zeta mystery"}, keys)
}

func TestBuilder_EveryEntrySatisfiesInvariant(t *testing.T) {
	ix := buildIndex(t, detection.Corpus{
		rec("Formaldehyde", "50-00-0"),
		rec("Broken", "99-99-9"),
		rec("", "64-17-5"),
		rec("Loner", ""),
	})

	entries, _, err := NewBuilder(nil).Build(ix)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NoError(t, e.CheckInvariant())
	}
}
