package compound

import (
	ctypes "github.com/turtacn/FoodSafety-MS-KB/pkg/types/compound"
)

// Candidate is an ephemeral identity suggestion for one compound from one
// source tier.  Candidates exist only between enrichment and fusion; they
// are interchanged as tabular artifacts and never enter the catalog
// themselves.
type Candidate struct {
	// CompoundKey is the identity key of the Orphan the suggestion is for.
	CompoundKey string `json:"compound_key"`

	CAS  string `json:"candidate_cas,omitempty"`
	Name string `json:"candidate_name,omitempty"`

	Source     ctypes.SourceType `json:"source_type"`
	Confidence ctypes.Confidence `json:"raw_confidence"`

	// PubChemCID and the property fields ride along from the source and
	// are applied only when the candidate wins fusion.
	PubChemCID       string `json:"pubchem_cid,omitempty"`
	MolecularFormula string `json:"molecular_formula,omitempty"`
	MolecularWeight  string `json:"molecular_weight,omitempty"`
	SMILES           string `json:"smiles,omitempty"`

	// Notes carries the raw status line from the producing adapter
	// ("Direct match from PubChem API.", "Not Found", ...).
	Notes string `json:"notes,omitempty"`
}

// HasCAS reports whether the candidate actually suggests a registry number.
// Adapters emit empty-CAS rows for "no candidate" outcomes so that every
// queried compound appears in the artifact.
func (c Candidate) HasCAS() bool {
	return NormalizeCAS(c.CAS) != ""
}

// CompetingValue is one side of an identity conflict.
type CompetingValue struct {
	Source ctypes.SourceType `json:"source_type"`
	Value  string            `json:"value"`
}

// Conflict records a same-priority disagreement discovered during fusion.
// Conflicts are append-only: once written with Resolution "unresolved" they
// are never mutated by the pipeline; resolution happens in manual review.
type Conflict struct {
	CompoundKey     string           `json:"compound_key"`
	Field           string           `json:"field"`
	CompetingValues []CompetingValue `json:"competing_values"`
	Resolution      string           `json:"resolution"`
}

// NewUnresolvedConflict constructs the canonical unresolved conflict row
// for a field of a compound.
func NewUnresolvedConflict(compoundKey, field string, values []CompetingValue) Conflict {
	return Conflict{
		CompoundKey:     compoundKey,
		Field:           field,
		CompetingValues: values,
		Resolution:      ctypes.ResolutionUnresolved,
	}
}
