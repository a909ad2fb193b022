// Package fusion reconciles identity candidates from multiple source
// tiers against the catalog.  The engine walks a priority waterfall; the
// highest tier with a usable, internally consistent answer wins, and
// disagreement within one tier is surfaced as a conflict instead of a
// guess.
package fusion

import (
	"sort"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// Stats summarizes one fusion pass.
type Stats struct {
	Candidates        int                       `json:"candidates"`
	DroppedInvalidCAS int                       `json:"dropped_invalid_cas"`
	Orphans           int                       `json:"orphans"`
	Promoted          int                       `json:"promoted"`
	PromotedByTier    map[ctypes.SourceType]int `json:"promoted_by_tier"`
	Conflicts         int                       `json:"conflicts"`
	NoCandidate       int                       `json:"no_candidate"`
	MergedDuplicates  int                       `json:"merged_duplicates"`
}

// Engine applies the source-priority waterfall.  The tier order is data:
// earlier tiers outrank later ones.
type Engine struct {
	waterfall []ctypes.SourceType
	logger    logging.Logger
}

// NewEngine returns an Engine with the given tier order, defaulting to
// Document > API > LLM when nil.
func NewEngine(waterfall []ctypes.SourceType, logger logging.Logger) *Engine {
	if len(waterfall) == 0 {
		waterfall = ctypes.DefaultWaterfall
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{waterfall: waterfall, logger: logger.Named("fusion")}
}

// Fuse resolves every Orphan in entries against the candidate set and
// returns the fused catalog sorted by identity key, plus the conflicts
// raised.  Entries are updated in place; promoted entries are re-keyed by
// their accepted CAS and merged into an existing Verified entry when the
// registry number is already cataloged.
//
// Candidates whose CAS fails format or checksum validation are dropped at
// intake and counted; they can never promote an Orphan.  A tier that
// offers two or more distinct registry numbers for one compound raises
// exactly one unresolved conflict and the compound stays Orphan; lower
// tiers are not consulted, and a lower tier never conflicts with a higher
// one.
func (e *Engine) Fuse(entries []*compound.Record, candidates []compound.Candidate) ([]*compound.Record, []compound.Conflict, Stats, error) {
	stats := Stats{
		Candidates:     len(candidates),
		PromotedByTier: make(map[ctypes.SourceType]int),
	}

	byKey := e.intake(candidates, &stats)

	var conflicts []compound.Conflict
	for _, entry := range entries {
		if entry.Status != ctypes.StatusOrphan {
			continue
		}
		stats.Orphans++

		rows := byKey[entry.IdentityKey]
		if len(rows) == 0 {
			stats.NoCandidate++
			continue
		}

		conflict, promoted, err := e.fuseOne(entry, rows)
		if err != nil {
			return nil, nil, stats, err
		}
		switch {
		case conflict != nil:
			stats.Conflicts++
			conflicts = append(conflicts, *conflict)
		case promoted != "":
			stats.Promoted++
			stats.PromotedByTier[promoted]++
		default:
			stats.NoCandidate++
		}
	}

	fused, merged := dedupe(entries)
	stats.MergedDuplicates = merged

	for _, rec := range fused {
		if err := rec.CheckInvariant(); err != nil {
			return nil, nil, stats, err
		}
	}

	e.logger.Info("fusion complete",
		logging.Int("orphans", stats.Orphans),
		logging.Int("promoted", stats.Promoted),
		logging.Int("conflicts", stats.Conflicts),
		logging.Int("dropped_invalid_cas", stats.DroppedInvalidCAS),
		logging.Int("merged_duplicates", stats.MergedDuplicates),
	)
	return fused, conflicts, stats, nil
}

// intake groups usable candidate rows by compound key.  Rows without a
// CAS carry no identity assertion and are skipped here; rows whose CAS
// fails validation are dropped and counted.
func (e *Engine) intake(candidates []compound.Candidate, stats *Stats) map[string][]compound.Candidate {
	byKey := make(map[string][]compound.Candidate)
	for _, c := range candidates {
		if compound.NormalizeCAS(c.CAS) == "" {
			continue
		}
		cas, err := compound.ValidateCAS(c.CAS)
		if err != nil {
			stats.DroppedInvalidCAS++
			e.logger.Warn("dropped candidate with invalid CAS",
				logging.String("compound", c.CompoundKey),
				logging.String("cas", c.CAS),
				logging.String("source", string(c.Source)),
			)
			continue
		}
		c.CAS = cas
		byKey[c.CompoundKey] = append(byKey[c.CompoundKey], c)
	}
	return byKey
}

// fuseOne resolves a single Orphan.  Returns the conflict raised, or the
// tier that won the promotion, or neither when no tier had a usable row.
func (e *Engine) fuseOne(entry *compound.Record, rows []compound.Candidate) (*compound.Conflict, ctypes.SourceType, error) {
	for _, tier := range e.waterfall {
		tierRows := filterBySource(rows, tier)
		if len(tierRows) == 0 {
			continue
		}

		values := distinctCAS(tierRows)
		if len(values) > 1 {
			conflict := e.raiseConflict(entry, tier, values)
			return &conflict, "", nil
		}

		winner := pickWinner(tierRows, values[0])
		if err := entry.Promote(winner.CAS, tier, winner.Confidence); err != nil {
			return nil, "", err
		}
		entry.IdentityKey = winner.CAS
		applyCandidate(entry, winner)
		return nil, tier, nil
	}
	return nil, "", nil
}

func (e *Engine) raiseConflict(entry *compound.Record, tier ctypes.SourceType, values []string) compound.Conflict {
	competing := make([]compound.CompetingValue, 0, len(values))
	for _, v := range values {
		competing = append(competing, compound.CompetingValue{Source: tier, Value: v})
		entry.AddProvenance(compound.ProvenanceEntry{
			Source:     tier,
			Field:      "cas_number",
			Value:      v,
			Confidence: ctypes.ConfidenceNone,
		})
	}
	e.logger.Warn("same-tier disagreement, compound stays orphan",
		logging.String("compound", entry.IdentityKey),
		logging.String("tier", string(tier)),
		logging.Int("values", len(values)),
	)
	return compound.NewUnresolvedConflict(entry.IdentityKey, "cas_number", competing)
}

func filterBySource(rows []compound.Candidate, tier ctypes.SourceType) []compound.Candidate {
	var out []compound.Candidate
	for _, r := range rows {
		if r.Source == tier {
			out = append(out, r)
		}
	}
	return out
}

// distinctCAS returns the sorted distinct registry numbers in rows.
func distinctCAS(rows []compound.Candidate) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rows {
		if _, dup := seen[r.CAS]; dup {
			continue
		}
		seen[r.CAS] = struct{}{}
		out = append(out, r.CAS)
	}
	sort.Strings(out)
	return out
}

// pickWinner selects the row that will stamp provenance and properties
// for the accepted CAS: the highest-confidence row carrying it.
func pickWinner(rows []compound.Candidate, cas string) compound.Candidate {
	rank := map[ctypes.Confidence]int{
		ctypes.ConfidenceHigh:   3,
		ctypes.ConfidenceMedium: 2,
		ctypes.ConfidenceLow:    1,
		ctypes.ConfidenceNone:   0,
	}
	best := compound.Candidate{}
	found := false
	for _, r := range rows {
		if r.CAS != cas {
			continue
		}
		if !found || rank[r.Confidence] > rank[best.Confidence] {
			best = r
			found = true
		}
	}
	return best
}

// applyCandidate folds the winning candidate's name and property
// side-channel into the promoted record.  Existing values are never
// overwritten.
func applyCandidate(rec *compound.Record, c compound.Candidate) {
	if c.Name != "" {
		rec.AddName(c.Name)
	}
	if rec.Properties.MolecularFormula == "" {
		rec.Properties.MolecularFormula = c.MolecularFormula
	}
	if rec.Properties.MolecularWeight == "" {
		rec.Properties.MolecularWeight = c.MolecularWeight
	}
	if rec.Properties.SMILES == "" {
		rec.Properties.SMILES = c.SMILES
	}
	if rec.Properties.PubChemCID == "" {
		rec.Properties.PubChemCID = c.PubChemCID
	}
	if rec.Properties.IUPACName == "" {
		rec.Properties.IUPACName = c.Name
	}
}

// dedupe re-sorts the catalog after promotion and merges entries that now
// share an identity key, keeping the first occurrence in key order.
func dedupe(entries []*compound.Record) ([]*compound.Record, int) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].IdentityKey < entries[j].IdentityKey
	})
	var (
		out    []*compound.Record
		merged int
	)
	for _, rec := range entries {
		if n := len(out); n > 0 && out[n-1].IdentityKey == rec.IdentityKey {
			out[n-1].Merge(rec)
			merged++
			continue
		}
		out = append(out, rec)
	}
	return out, merged
}
