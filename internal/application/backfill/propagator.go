// Package backfill propagates resolved compound identities from the fused
// catalog back into the detection corpus.  Only the two identity fields
// are ever written; measurement data passes through untouched.
package backfill

import (
	"strings"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/detection"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// Stats summarizes one backfill pass.
type Stats struct {
	Records          int `json:"records"`
	CASFilled        int `json:"cas_filled"`
	NamesFilled      int `json:"names_filled"`
	OrphanReferences int `json:"orphan_references"`
	Untouched        int `json:"untouched"`
}

// Propagator fills missing identity fields in detection records from the
// fused catalog.
type Propagator struct {
	nameToCAS map[string]string
	casToName map[string]string
	logger    logging.Logger
}

// NewPropagator builds the lookup maps from the fused catalog.  Every
// name variant of a Verified entry maps to its CAS; every CAS maps to the
// entry's preferred name.  Orphan entries contribute nothing: they have
// no verified identity to propagate.
func NewPropagator(catalog []*compound.Record, logger logging.Logger) *Propagator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	p := &Propagator{
		nameToCAS: make(map[string]string),
		casToName: make(map[string]string),
		logger:    logger.Named("backfill"),
	}
	for _, entry := range catalog {
		if entry.Status != ctypes.StatusVerified {
			continue
		}
		p.casToName[entry.CASNumber] = entry.PreferredName
		for _, name := range entry.Names {
			if strings.HasPrefix(name, "Unknown Compound (") {
				continue
			}
			p.nameToCAS[compound.NormalizeName(name)] = entry.CASNumber
		}
	}
	return p
}

// Apply rewrites the corpus filling missing CAS numbers from names and
// missing names from CAS numbers.  Existing non-empty values are never
// overwritten, so a second pass over already-backfilled output changes
// nothing.  Records whose identity resolves to nothing in the catalog are
// left unchanged and counted as orphan references.  The input corpus is
// not mutated.
func (p *Propagator) Apply(corpus detection.Corpus) (detection.Corpus, Stats) {
	stats := Stats{Records: len(corpus)}
	out := make(detection.Corpus, 0, len(corpus))

	for _, rec := range corpus {
		patched := rec.Clone()
		cas := patched.CAS()
		name := patched.CompoundName()
		changed := false

		if cas == "" && name != "" {
			if filled, ok := p.nameToCAS[compound.NormalizeName(name)]; ok {
				patched.SetCAS(filled)
				stats.CASFilled++
				changed = true
			} else {
				stats.OrphanReferences++
			}
		}
		if name == "" && cas != "" {
			if filled, ok := p.casToName[cas]; ok {
				patched.SetCompoundName(filled)
				stats.NamesFilled++
				changed = true
			} else {
				stats.OrphanReferences++
			}
		}

		if !changed {
			stats.Untouched++
		}
		out = append(out, patched)
	}

	p.logger.Info("backfill complete",
		logging.Int("records", stats.Records),
		logging.Int("cas_filled", stats.CASFilled),
		logging.Int("names_filled", stats.NamesFilled),
		logging.Int("orphan_references", stats.OrphanReferences),
	)
	return out, stats
}
