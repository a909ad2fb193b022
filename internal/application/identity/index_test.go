package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/detection"
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

func TestIndex_Build_Counts(t *testing.T) {
	corpus := detection.Corpus{
		rec("Formaldehyde", "50-00-0"),
		rec("formaldehyde", "50-00-0"),
		rec("", "64-17-5"),
		rec("Mystery compound", ""),
		rec("", ""),
	}

	ix := NewIndex(nil)
	stats := ix.Build(corpus)

	assert.Equal(t, 5, stats.InputRecords)
	assert.Equal(t, 2, stats.PairedRecords)
	assert.Equal(t, 1, stats.CASOnlyRecords)
	assert.Equal(t, 1, stats.NameOnlyRecords)
	assert.Equal(t, 1, stats.UnidentifiedRecords)
	assert.Equal(t, 0, stats.AmbiguousNames)
}

func TestIndex_Build_ExcludesStructurallyBrokenRecords(t *testing.T) {
	corpus := detection.Corpus{
		rec("Formaldehyde", "50-00-0"),
		nil,
		detection.Record{detection.FieldCASNumber: "none", detection.FieldCompoundName: "null"},
	}

	ix := NewIndex(nil)
	stats := ix.Build(corpus)

	assert.Equal(t, 3, stats.InputRecords)
	assert.Equal(t, 1, stats.PairedRecords)
	assert.Equal(t, 2, stats.UnidentifiedRecords, "null and identity-less records are excluded, never dropped silently")
}

func TestIndex_CASForName_CaseInsensitive(t *testing.T) {
	ix := NewIndex(nil)
	ix.Build(detection.Corpus{rec("Formaldehyde", "50-00-0")})

	assert.Equal(t, "50-00-0", ix.CASForName("FORMALDEHYDE"))
	assert.Equal(t, "50-00-0", ix.CASForName("  formaldehyde  "))
	assert.Equal(t, "", ix.CASForName("ethanol"))
}

func TestIndex_AmbiguousName_NeverImputed(t *testing.T) {
	corpus := detection.Corpus{
		rec("xylene", "95-47-6"),
		rec("Xylene", "108-38-3"),
		rec("xylene", ""),
	}

	ix := NewIndex(nil)
	stats := ix.Build(corpus)
	assert.Equal(t, 1, stats.AmbiguousNames)
	assert.Equal(t, []string{"xylene"}, ix.AmbiguousNames())
	assert.Equal(t, "", ix.CASForName("xylene"))

	out := ix.Impute(corpus, &stats)
	require.Len(t, out, 3)
	assert.Equal(t, "", out[2].CAS())
	assert.Equal(t, 0, stats.CASFilled)
}

func TestIndex_Impute_FillsBothDirections(t *testing.T) {
	corpus := detection.Corpus{
		rec("Formaldehyde", "50-00-0"),
		rec("formaldehyde", ""),
		rec("", "50-00-0"),
	}

	ix := NewIndex(nil)
	stats := ix.Build(corpus)
	out := ix.Impute(corpus, &stats)

	require.Len(t, out, 3)
	assert.Equal(t, "50-00-0", out[1].CAS())
	assert.Equal(t, "Formaldehyde", out[2].CompoundName())
	assert.Equal(t, 1, stats.CASFilled)
	assert.Equal(t, 1, stats.NamesFilled)
}

func TestIndex_Impute_NeverOverwrites(t *testing.T) {
	corpus := detection.Corpus{
		rec("Formaldehyde", "50-00-0"),
		rec("Formaldehyde", "99-99-9"),
	}

	ix := NewIndex(nil)
	stats := ix.Build(corpus)
	out := ix.Impute(corpus, &stats)

	// The second record keeps its own CAS even though the name now maps
	// to two registry numbers.
	assert.Equal(t, "99-99-9", out[1].CAS())
	assert.Equal(t, 0, stats.CASFilled)
}

func TestIndex_Impute_DoesNotMutateInput(t *testing.T) {
	corpus := detection.Corpus{
		rec("Formaldehyde", "50-00-0"),
		rec("formaldehyde", ""),
	}

	ix := NewIndex(nil)
	stats := ix.Build(corpus)
	_ = ix.Impute(corpus, &stats)

	assert.Equal(t, "", corpus[1].CAS())
}

func TestIndex_ShortestName_DeterministicTie(t *testing.T) {
	corpus := detection.Corpus{
		rec("abc", "50-00-0"),
		rec("abd", "50-00-0"),
		rec("", "50-00-0"),
	}

	ix := NewIndex(nil)
	stats := ix.Build(corpus)
	out := ix.Impute(corpus, &stats)

	// Equal lengths resolve lexicographically.
	assert.Equal(t, "abc", out[2].CompoundName())
}

func TestIndex_CASOnly_ExcludesRecovered(t *testing.T) {
	corpus := detection.Corpus{
		rec("Ethanol", "64-17-5"),
		rec("", "64-17-5"),
		rec("", "7732-18-5"),
	}

	ix := NewIndex(nil)
	ix.Build(corpus)

	// 64-17-5 is paired elsewhere, so only the true CAS-only entry remains.
	assert.Equal(t, []string{"7732-18-5"}, ix.CASOnly())
}

func TestIndex_OrphanNames_ExcludesKnown(t *testing.T) {
	corpus := detection.Corpus{
		rec("Ethanol", "64-17-5"),
		rec("ethanol", ""),
		rec("Mystery A", ""),
		rec("mystery a", ""),
	}

	ix := NewIndex(nil)
	ix.Build(corpus)

	// Case variants collapse; names paired somewhere are not orphans.
	assert.Equal(t, []string{"Mystery A"}, ix.OrphanNames())
}

func TestIndex_NamesForCAS_Sorted(t *testing.T) {
	corpus := detection.Corpus{
		rec("beta", "50-00-0"),
		rec("alpha", "50-00-0"),
	}

	ix := NewIndex(nil)
	ix.Build(corpus)
	assert.Equal(t, []string{"alpha", "beta"}, ix.NamesForCAS("50-00-0"))
}
