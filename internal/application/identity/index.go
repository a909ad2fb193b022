// Package identity builds the bidirectional name/CAS index over the cleaned
// detection corpus and performs missing-field imputation.  The index is the
// first curation phase: everything downstream (catalog build, enrichment,
// fusion) works from the relationships learned here.
package identity

import (
	"sort"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/detection"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
)

// Stats summarizes one index-and-impute pass.  Every skipped or ambiguous
// record is counted; nothing is silently dropped.
type Stats struct {
	InputRecords      int `json:"input_records"`
	PairedRecords     int `json:"paired_records"`
	CASOnlyRecords    int `json:"cas_only_records"`
	NameOnlyRecords   int `json:"name_only_records"`
	UnidentifiedRecords int `json:"unidentified_records"`
	CASFilled         int `json:"cas_filled"`
	NamesFilled       int `json:"names_filled"`
	AmbiguousNames    int `json:"ambiguous_names"`
}

// Index is the bidirectional mapping between observed compound-name
// variants and CAS registry numbers.  Keys are normalized names; name sets
// preserve original casing for preferred-name election downstream.
type Index struct {
	nameToCAS  map[string]map[string]struct{}
	casToNames map[string]map[string]struct{}
	casOnly    map[string]struct{}
	nameOnly   map[string]string // normalized -> first observed casing
	logger     logging.Logger
}

// NewIndex returns an empty Index.
func NewIndex(logger logging.Logger) *Index {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Index{
		nameToCAS:  make(map[string]map[string]struct{}),
		casToNames: make(map[string]map[string]struct{}),
		casOnly:    make(map[string]struct{}),
		nameOnly:   make(map[string]string),
		logger:     logger.Named("identity"),
	}
}

// Build scans the corpus and registers every observed (name, CAS) pair.
// Records carrying only one of the two are tracked separately so the
// catalog builder can recover CAS-only entries and identify true orphans.
func (ix *Index) Build(corpus detection.Corpus) Stats {
	stats := Stats{InputRecords: len(corpus)}

	for _, rec := range corpus {
		if err := rec.CheckStructure(); err != nil {
			stats.UnidentifiedRecords++
			ix.logger.Debug("record excluded from index", logging.Err(err))
			continue
		}
		cas := rec.CAS()
		name := rec.CompoundName()
		key := compound.NormalizeName(name)

		switch {
		case cas != "" && key != "":
			stats.PairedRecords++
			ix.register(cas, key, name)
		case cas != "":
			stats.CASOnlyRecords++
			ix.casOnly[cas] = struct{}{}
		default:
			stats.NameOnlyRecords++
			if _, seen := ix.nameOnly[key]; !seen {
				ix.nameOnly[key] = name
			}
		}
	}

	stats.AmbiguousNames = len(ix.AmbiguousNames())
	ix.logger.Info("index built",
		logging.Int("paired", stats.PairedRecords),
		logging.Int("cas_only", stats.CASOnlyRecords),
		logging.Int("name_only", stats.NameOnlyRecords),
		logging.Int("ambiguous_names", stats.AmbiguousNames),
	)
	return stats
}

func (ix *Index) register(cas, key, rawName string) {
	if ix.nameToCAS[key] == nil {
		ix.nameToCAS[key] = make(map[string]struct{})
	}
	ix.nameToCAS[key][cas] = struct{}{}

	if ix.casToNames[cas] == nil {
		ix.casToNames[cas] = make(map[string]struct{})
	}
	ix.casToNames[cas][rawName] = struct{}{}
}

// CASForName returns the single CAS number a name maps to, or "" when the
// name is unknown or ambiguous.  Only unambiguous mappings are ever used
// for imputation.
func (ix *Index) CASForName(name string) string {
	set := ix.nameToCAS[compound.NormalizeName(name)]
	if len(set) != 1 {
		return ""
	}
	for cas := range set {
		return cas
	}
	return ""
}

// NamesForCAS returns the sorted name variants ever recorded for a CAS.
func (ix *Index) NamesForCAS(cas string) []string {
	set := ix.casToNames[cas]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// shortestNameForCAS picks the imputation value for a missing name field:
// the shortest variant, ties broken lexicographically for determinism.
func (ix *Index) shortestNameForCAS(cas string) string {
	names := ix.NamesForCAS(cas)
	best := ""
	for _, n := range names {
		if best == "" || len(n) < len(best) {
			best = n
		}
	}
	return best
}

// AmbiguousNames returns the sorted normalized names that map to more than
// one distinct CAS number.  These are never imputed; affected records stay
// untouched pending later resolution.
func (ix *Index) AmbiguousNames() []string {
	var out []string
	for key, set := range ix.nameToCAS {
		if len(set) > 1 {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// PairedCAS returns the sorted CAS numbers observed together with at least
// one name.
func (ix *Index) PairedCAS() []string {
	out := make([]string, 0, len(ix.casToNames))
	for cas := range ix.casToNames {
		out = append(out, cas)
	}
	sort.Strings(out)
	return out
}

// CASOnly returns the sorted CAS numbers observed without any name and not
// recovered by a paired record elsewhere in the corpus.
func (ix *Index) CASOnly() []string {
	var out []string
	for cas := range ix.casOnly {
		if _, paired := ix.casToNames[cas]; !paired {
			out = append(out, cas)
		}
	}
	sort.Strings(out)
	return out
}

// OrphanNames returns the original-cased names that never co-occur with a
// CAS anywhere in the corpus, sorted by normalized key.  Names that appear
// in some paired record already have an identity and are excluded.
func (ix *Index) OrphanNames() []string {
	keys := make([]string, 0, len(ix.nameOnly))
	for key := range ix.nameOnly {
		if _, known := ix.nameToCAS[key]; known {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, ix.nameOnly[key])
	}
	return out
}

// Impute rewrites the corpus filling strictly missing identity fields from
// unambiguous index mappings: a missing CAS is filled when the record's
// name maps to exactly one CAS; a missing name is filled with the shortest
// variant recorded for the record's CAS.  Existing non-empty values are
// never overwritten, ambiguous names are never imputed, and the input
// corpus is never mutated.
func (ix *Index) Impute(corpus detection.Corpus, stats *Stats) detection.Corpus {
	out := make(detection.Corpus, 0, len(corpus))

	for _, rec := range corpus {
		patched := rec.Clone()
		cas := patched.CAS()
		name := patched.CompoundName()

		if cas == "" && name != "" {
			if filled := ix.CASForName(name); filled != "" {
				patched.SetCAS(filled)
				stats.CASFilled++
			}
		}

		if name == "" && cas != "" {
			if filled := ix.shortestNameForCAS(cas); filled != "" {
				patched.SetCompoundName(filled)
				stats.NamesFilled++
			}
		}

		out = append(out, patched)
	}

	ix.logger.Info("imputation complete",
		logging.Int("cas_filled", stats.CASFilled),
		logging.Int("names_filled", stats.NamesFilled),
	)
	return out
}
