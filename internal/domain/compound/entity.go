// Package compound provides the core domain model for compound identity in
// the FoodSafety-MS-KB curation pipeline.  The Record aggregate carries a
// compound's resolved identity (CAS number, preferred name, observed name
// variants), its verification status, and the full provenance trail of every
// assertion that contributed to it.
package compound

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// ProvenanceEntry records one assertion about a compound: which source made
// it, for which field, with what value and confidence.  Entries are
// append-only and preserve source order.
type ProvenanceEntry struct {
	Source     ctypes.SourceType `json:"source"`
	Field      string            `json:"field"`
	Value      string            `json:"value"`
	Confidence ctypes.Confidence `json:"confidence"`
}

// ChemicalProperties is the side-channel of descriptors carried along with
// a resolved identity.  Values arrive from the winning enrichment source;
// they are informative, never part of the identity key.
type ChemicalProperties struct {
	MolecularFormula string `json:"molecular_formula,omitempty"`
	MolecularWeight  string `json:"molecular_weight,omitempty"`
	SMILES           string `json:"smiles,omitempty"`
	PubChemCID       string `json:"pubchem_cid,omitempty"`
	IUPACName        string `json:"iupac_name,omitempty"`
}

// Record is the catalog entry for one distinct compound identity.
//
// Invariant: Status == Verified implies CASNumber is non-empty, format
// valid, and checksum valid; Status == Orphan implies CASNumber is empty
// (raw unverifiable values survive only in Provenance).  All mutating
// methods preserve this invariant; the catalog builder and fusion engine
// are the only writers.
type Record struct {
	// IdentityKey is the dedup key: the normalized CAS number when one is
	// verified, otherwise the normalized preferred name.
	IdentityKey string `json:"identity_key"`

	CASNumber     string `json:"cas_number,omitempty"`
	PreferredName string `json:"preferred_name"`

	// Names is the sorted set of observed name variants, preferred name
	// included.
	Names []string `json:"names"`

	Status ctypes.Status `json:"status"`

	// CASSource tags which waterfall tier supplied the accepted CAS:
	// "document", "api", "llm", or "" while unresolved.
	CASSource ctypes.SourceType `json:"cas_source,omitempty"`

	Provenance []ProvenanceEntry  `json:"provenance,omitempty"`
	Properties ChemicalProperties `json:"chemical_properties,omitempty"`
}

// NewVerified constructs a Verified record from a checksum-valid CAS number
// and the set of names observed for it.  Returns an error when the CAS
// fails format or checksum validation.
func NewVerified(rawCAS string, names []string) (*Record, error) {
	cas, err := ValidateCAS(rawCAS)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		IdentityKey: cas,
		CASNumber:   cas,
		Status:      ctypes.StatusVerified,
		CASSource:   ctypes.SourceDocument,
	}
	for _, n := range names {
		rec.AddName(n)
	}
	if rec.PreferredName == "" {
		rec.PreferredName = placeholderName(cas)
	}
	rec.AddProvenance(ProvenanceEntry{
		Source:     ctypes.SourceDocument,
		Field:      "cas_number",
		Value:      cas,
		Confidence: ctypes.ConfidenceHigh,
	})
	return rec, nil
}

// NewOrphan constructs an Orphan record keyed by name.  rawCAS, when
// non-empty, is an observed but unverifiable registry string; it is
// preserved in provenance only, keeping the Orphan invariant.
func NewOrphan(name string, rawCAS string) (*Record, error) {
	key := NormalizeName(name)
	if key == "" {
		return nil, errors.New(errors.ErrCodeRecordStructural, "orphan compound requires a name")
	}
	rec := &Record{
		IdentityKey: key,
		Status:      ctypes.StatusOrphan,
	}
	rec.AddName(name)
	if cas := NormalizeCAS(rawCAS); cas != "" {
		rec.AddProvenance(ProvenanceEntry{
			Source:     ctypes.SourceDocument,
			Field:      "cas_number",
			Value:      cas,
			Confidence: ctypes.ConfidenceLow,
		})
	}
	return rec, nil
}

// placeholderName labels catalog entries recovered from CAS-only records.
func placeholderName(cas string) string {
	return fmt.Sprintf("Unknown Compound (%s)", cas)
}

// AddName registers an observed name variant, keeps Names sorted and
// deduplicated (case-insensitively), and re-elects the preferred name as
// the shortest variant observed so far.  Placeholder names never win the
// election against a real one.
func (r *Record) AddName(name string) {
	trimmed := strings.Join(strings.Fields(name), " ")
	if NormalizeName(trimmed) == "" {
		return
	}
	for _, existing := range r.Names {
		if strings.EqualFold(existing, trimmed) {
			return
		}
	}
	r.Names = append(r.Names, trimmed)
	sort.Strings(r.Names)
	r.electPreferredName()
}

func (r *Record) electPreferredName() {
	best := ""
	for _, n := range r.Names {
		if strings.HasPrefix(n, "Unknown Compound (") {
			continue
		}
		if best == "" || len(n) < len(best) || (len(n) == len(best) && n < best) {
			best = n
		}
	}
	if best != "" {
		r.PreferredName = best
	} else if len(r.Names) > 0 {
		r.PreferredName = r.Names[0]
	}
}

// AddProvenance appends an assertion to the provenance trail.  The trail is
// append-only; nothing is ever rewritten or removed.
func (r *Record) AddProvenance(p ProvenanceEntry) {
	r.Provenance = append(r.Provenance, p)
}

// Promote transitions an Orphan to Verified with the accepted CAS number
// from the given source tier.  Returns an error if the record is already
// Verified or the CAS fails validation; the record is unchanged on error.
func (r *Record) Promote(rawCAS string, source ctypes.SourceType, confidence ctypes.Confidence) error {
	if r.Status == ctypes.StatusVerified {
		return errors.Conflict("compound is already verified").
			WithDetail("key=" + r.IdentityKey)
	}
	cas, err := ValidateCAS(rawCAS)
	if err != nil {
		return err
	}
	r.CASNumber = cas
	r.Status = ctypes.StatusVerified
	r.CASSource = source
	r.AddProvenance(ProvenanceEntry{
		Source:     source,
		Field:      "cas_number",
		Value:      cas,
		Confidence: confidence,
	})
	return nil
}

// Merge folds other into r: union of names, concatenated provenance in
// source order, and properties filled from other where r has gaps.  The
// receiver's status and CAS are authoritative; Merge is only called for
// records sharing a dedup key, so statuses already agree.
func (r *Record) Merge(other *Record) {
	if other == nil {
		return
	}
	for _, n := range other.Names {
		r.AddName(n)
	}
	r.Provenance = append(r.Provenance, other.Provenance...)
	if r.Properties.MolecularFormula == "" {
		r.Properties.MolecularFormula = other.Properties.MolecularFormula
	}
	if r.Properties.MolecularWeight == "" {
		r.Properties.MolecularWeight = other.Properties.MolecularWeight
	}
	if r.Properties.SMILES == "" {
		r.Properties.SMILES = other.Properties.SMILES
	}
	if r.Properties.PubChemCID == "" {
		r.Properties.PubChemCID = other.Properties.PubChemCID
	}
	if r.Properties.IUPACName == "" {
		r.Properties.IUPACName = other.Properties.IUPACName
	}
}

// CheckInvariant verifies the Verified/Orphan CAS invariant and returns a
// descriptive error when it is violated.  The catalog builder runs it on
// every entry before emission.
func (r *Record) CheckInvariant() error {
	switch r.Status {
	case ctypes.StatusVerified:
		if _, err := ValidateCAS(r.CASNumber); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "verified compound carries invalid CAS").
				WithDetail("key=" + r.IdentityKey)
		}
	case ctypes.StatusOrphan:
		if r.CASNumber != "" {
			return errors.Newf(errors.ErrCodeInternal,
				"orphan compound %q carries CAS %q", r.IdentityKey, r.CASNumber)
		}
	default:
		return errors.Newf(errors.ErrCodeInternal, "compound %q has unknown status %q", r.IdentityKey, r.Status)
	}
	return nil
}

// Synonyms returns every name variant except the preferred one.
func (r *Record) Synonyms() []string {
	out := make([]string, 0, len(r.Names))
	for _, n := range r.Names {
		if n != r.PreferredName {
			out = append(out, n)
		}
	}
	return out
}
