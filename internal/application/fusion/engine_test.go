package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

func orphan(t *testing.T, name string) *compound.Record {
	t.Helper()
	rec, err := compound.NewOrphan(name, "")
	require.NoError(t, err)
	return rec
}

func verified(t *testing.T, cas string, names ...string) *compound.Record {
	t.Helper()
	rec, err := compound.NewVerified(cas, names)
	require.NoError(t, err)
	return rec
}

func cand(key, cas string, source ctypes.SourceType, conf ctypes.Confidence) compound.Candidate {
	return compound.Candidate{CompoundKey: key, CAS: cas, Source: source, Confidence: conf}
}

func TestEngine_SingleAPICandidatePromotes(t *testing.T) {
	entries := []*compound.Record{orphan(t, "Mystery")}
	candidates := []compound.Candidate{
		cand("mystery", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
	}

	fused, conflicts, stats, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	require.Len(t, fused, 1)
	assert.Empty(t, conflicts)

	rec := fused[0]
	assert.Equal(t, ctypes.StatusVerified, rec.Status)
	assert.Equal(t, "50-00-0", rec.CASNumber)
	assert.Equal(t, "50-00-0", rec.IdentityKey)
	assert.Equal(t, ctypes.SourceAPI, rec.CASSource)
	assert.Equal(t, 1, stats.Promoted)
	assert.Equal(t, 1, stats.PromotedByTier[ctypes.SourceAPI])
}

func TestEngine_HigherTierWinsSilently(t *testing.T) {
	entries := []*compound.Record{orphan(t, "Mystery")}
	candidates := []compound.Candidate{
		cand("mystery", "64-17-5", ctypes.SourceLLM, ctypes.ConfidenceHigh),
		cand("mystery", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
	}

	fused, conflicts, stats, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	require.Len(t, fused, 1)

	// Cross-tier disagreement is not a conflict; API outranks LLM.
	assert.Empty(t, conflicts)
	assert.Equal(t, "50-00-0", fused[0].CASNumber)
	assert.Equal(t, ctypes.SourceAPI, fused[0].CASSource)
	assert.Equal(t, 0, stats.Conflicts)
}

func TestEngine_SameTierDisagreementRaisesOneConflict(t *testing.T) {
	entries := []*compound.Record{orphan(t, "Xylene")}
	candidates := []compound.Candidate{
		cand("xylene", "95-47-6", ctypes.SourceAPI, ctypes.ConfidenceHigh),
		cand("xylene", "108-38-3", ctypes.SourceAPI, ctypes.ConfidenceHigh),
		// A lower tier agrees with one side; it must not break the tie.
		cand("xylene", "95-47-6", ctypes.SourceLLM, ctypes.ConfidenceHigh),
	}

	fused, conflicts, stats, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, "xylene", c.CompoundKey)
	assert.Equal(t, "cas_number", c.Field)
	assert.Equal(t, ctypes.ResolutionUnresolved, c.Resolution)
	require.Len(t, c.CompetingValues, 2)
	assert.Equal(t, "108-38-3", c.CompetingValues[0].Value)
	assert.Equal(t, "95-47-6", c.CompetingValues[1].Value)

	assert.Equal(t, ctypes.StatusOrphan, fused[0].Status)
	assert.Empty(t, fused[0].CASNumber)
	assert.Equal(t, 1, stats.Conflicts)
	assert.Equal(t, 0, stats.Promoted)
}

func TestEngine_AgreeingRowsWithinTierPromote(t *testing.T) {
	entries := []*compound.Record{orphan(t, "Mystery")}
	candidates := []compound.Candidate{
		cand("mystery", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceMedium),
		cand("mystery", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
	}

	fused, conflicts, _, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, ctypes.StatusVerified, fused[0].Status)
}

func TestEngine_InvalidCASDroppedAtIntake(t *testing.T) {
	entries := []*compound.Record{orphan(t, "Mystery")}
	candidates := []compound.Candidate{
		// Fails the checksum; must never promote.
		cand("mystery", "50-00-1", ctypes.SourceAPI, ctypes.ConfidenceHigh),
		cand("mystery", "64-17-5", ctypes.SourceLLM, ctypes.ConfidenceLow),
	}

	fused, conflicts, stats, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, 1, stats.DroppedInvalidCAS)

	// With the API row gone the LLM tier is the highest usable one.
	assert.Equal(t, "64-17-5", fused[0].CASNumber)
	assert.Equal(t, ctypes.SourceLLM, fused[0].CASSource)
}

func TestEngine_ConflictedTierShadowsLowerTiers(t *testing.T) {
	entries := []*compound.Record{orphan(t, "Mystery")}
	candidates := []compound.Candidate{
		cand("mystery", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
		cand("mystery", "64-17-5", ctypes.SourceAPI, ctypes.ConfidenceHigh),
		cand("mystery", "7732-18-5", ctypes.SourceLLM, ctypes.ConfidenceHigh),
	}

	fused, conflicts, _, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ctypes.StatusOrphan, fused[0].Status, "conflicted tier must not fall through to LLM")
}

func TestEngine_PromotionCarriesProperties(t *testing.T) {
	entries := []*compound.Record{orphan(t, "Mystery")}
	candidates := []compound.Candidate{{
		CompoundKey:      "mystery",
		CAS:              "50-00-0",
		Name:             "formaldehyde",
		Source:           ctypes.SourceAPI,
		Confidence:       ctypes.ConfidenceHigh,
		PubChemCID:       "712",
		MolecularFormula: "CH2O",
		MolecularWeight:  "30.026",
		SMILES:           "C=O",
	}}

	fused, _, _, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)

	rec := fused[0]
	assert.Equal(t, "CH2O", rec.Properties.MolecularFormula)
	assert.Equal(t, "30.026", rec.Properties.MolecularWeight)
	assert.Equal(t, "C=O", rec.Properties.SMILES)
	assert.Equal(t, "712", rec.Properties.PubChemCID)
	assert.Equal(t, "formaldehyde", rec.Properties.IUPACName)
	assert.Contains(t, rec.Names, "formaldehyde")
}

func TestEngine_PromotionMergesIntoExistingVerified(t *testing.T) {
	entries := []*compound.Record{
		verified(t, "50-00-0", "Formaldehyde"),
		orphan(t, "Methanal"),
	}
	candidates := []compound.Candidate{
		cand("methanal", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
	}

	fused, _, stats, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	require.Len(t, fused, 1, "promoted orphan collapses into the existing entry")
	assert.Equal(t, 1, stats.MergedDuplicates)
	assert.ElementsMatch(t, []string{"Formaldehyde", "Methanal"}, fused[0].Names)
}

func TestEngine_VerifiedEntriesUntouched(t *testing.T) {
	entries := []*compound.Record{verified(t, "64-17-5", "Ethanol")}
	candidates := []compound.Candidate{
		cand("64-17-5", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
	}

	fused, conflicts, stats, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, "64-17-5", fused[0].CASNumber)
	assert.Equal(t, 0, stats.Orphans)
}

func TestEngine_CustomWaterfallOrder(t *testing.T) {
	// Inverted order: LLM outranks API.
	engine := NewEngine([]ctypes.SourceType{ctypes.SourceLLM, ctypes.SourceAPI}, nil)

	entries := []*compound.Record{orphan(t, "Mystery")}
	candidates := []compound.Candidate{
		cand("mystery", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
		cand("mystery", "64-17-5", ctypes.SourceLLM, ctypes.ConfidenceLow),
	}

	fused, _, _, err := engine.Fuse(entries, candidates)
	require.NoError(t, err)
	assert.Equal(t, "64-17-5", fused[0].CASNumber)
	assert.Equal(t, ctypes.SourceLLM, fused[0].CASSource)
}

func TestEngine_OutputSortedByIdentityKey(t *testing.T) {
	entries := []*compound.Record{
		orphan(t, "Zeta"),
		orphan(t, "Alpha"),
		verified(t, "64-17-5", "Ethanol"),
	}
	candidates := []compound.Candidate{
		cand("zeta", "50-00-0", ctypes.SourceAPI, ctypes.ConfidenceHigh),
	}

	fused, _, _, err := NewEngine(nil, nil).Fuse(entries, candidates)
	require.NoError(t, err)

	keys := make([]string, 0, len(fused))
	for _, r := range fused {
		keys = append(keys, r.IdentityKey)
	}
	assert.Equal(t, []string{"50-00-0", "64-17-5", "alpha"}, keys)
}
