// Package catalog turns the identity index into the deduplicated compound
// catalog.  Every distinct identity becomes exactly one entry: Verified when
// anchored by a checksum-valid CAS number, Orphan otherwise.
package catalog

import (
	"sort"

	"github.com/turtacn/FoodSafety-MS-KB/internal/application/identity"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// Stats summarizes one catalog build.  Identities that cannot become
// entries are counted, never silently discarded.
type Stats struct {
	Verified          int `json:"verified"`
	Orphans           int `json:"orphans"`
	InvalidCASDemoted int `json:"invalid_cas_demoted"`
	CASOnlyRejected   int `json:"cas_only_rejected"`
	Merged            int `json:"merged"`
	Total             int `json:"total"`
}

// Builder assembles catalog entries from an identity index.
type Builder struct {
	logger logging.Logger
}

// NewBuilder returns a Builder logging through the given logger.
func NewBuilder(logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Builder{logger: logger.Named("catalog")}
}

// Build produces the version-1 catalog from the index, sorted by identity
// key.  Paired identities with a checksum-valid CAS become Verified
// entries; paired identities whose CAS fails validation are demoted to
// Orphans keeping the raw value in provenance; valid CAS-only identities
// become Verified entries under a placeholder name; names never seen with
// any CAS become Orphans.  CAS-only values that fail validation have no
// usable identity at all and are rejected with a count.
func (b *Builder) Build(ix *identity.Index) ([]*compound.Record, Stats, error) {
	stats := Stats{}
	byKey := make(map[string]*compound.Record)

	add := func(rec *compound.Record) {
		if existing, ok := byKey[rec.IdentityKey]; ok {
			existing.Merge(rec)
			stats.Merged++
			return
		}
		byKey[rec.IdentityKey] = rec
	}

	for _, cas := range ix.PairedCAS() {
		names := ix.NamesForCAS(cas)
		rec, err := compound.NewVerified(cas, names)
		if err != nil {
			orphan, oerr := b.demote(names, cas)
			if oerr != nil {
				return nil, stats, oerr
			}
			stats.InvalidCASDemoted++
			add(orphan)
			continue
		}
		add(rec)
	}

	for _, cas := range ix.CASOnly() {
		rec, err := compound.NewVerified(cas, nil)
		if err != nil {
			stats.CASOnlyRejected++
			b.logger.Warn("rejected CAS-only identity with invalid registry number",
				logging.String("cas", cas), logging.Err(err))
			continue
		}
		add(rec)
	}

	for _, name := range ix.OrphanNames() {
		rec, err := compound.NewOrphan(name, "")
		if err != nil {
			return nil, stats, err
		}
		add(rec)
	}

	entries := make([]*compound.Record, 0, len(byKey))
	for _, rec := range byKey {
		if err := rec.CheckInvariant(); err != nil {
			return nil, stats, err
		}
		entries = append(entries, rec)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].IdentityKey < entries[j].IdentityKey
	})

	for _, rec := range entries {
		switch rec.Status {
		case ctypes.StatusVerified:
			stats.Verified++
		default:
			stats.Orphans++
		}
	}
	stats.Total = len(entries)

	b.logger.Info("catalog built",
		logging.Int("verified", stats.Verified),
		logging.Int("orphans", stats.Orphans),
		logging.Int("invalid_cas_demoted", stats.InvalidCASDemoted),
		logging.Int("cas_only_rejected", stats.CASOnlyRejected),
	)
	return entries, stats, nil
}

// demote builds the Orphan replacement for a paired identity whose CAS
// failed validation.  The raw CAS survives only in provenance.
func (b *Builder) demote(names []string, rawCAS string) (*compound.Record, error) {
	primary := ""
	for _, n := range names {
		if primary == "" || len(n) < len(primary) || (len(n) == len(primary) && n < primary) {
			primary = n
		}
	}
	rec, err := compound.NewOrphan(primary, rawCAS)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		rec.AddName(n)
	}
	return rec, nil
}
