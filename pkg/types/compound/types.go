// Package compound defines the shared vocabulary types for compound
// identity curation: catalog status, candidate source tiers, and
// confidence grades.  Domain entities and application services all speak
// these types; keeping them here avoids import cycles between layers.
package compound

import "strings"

// Status is the lifecycle state of a catalog entry.
type Status string

const (
	// StatusVerified marks an entry whose CAS number is present, format
	// valid, and checksum valid.
	StatusVerified Status = "Verified"

	// StatusOrphan marks an entry without a validated CAS number.
	StatusOrphan Status = "Orphan"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusVerified || s == StatusOrphan
}

// SourceType identifies where a CAS/name assertion came from.  The zero
// priority tier (document) outranks every machine-derived tier.
type SourceType string

const (
	// SourceDocument is a value asserted by the source literature itself.
	SourceDocument SourceType = "document"

	// SourceAPI is a value suggested by the external chemical database.
	SourceAPI SourceType = "api"

	// SourceLLM is a value inferred by the external LLM collaborator.
	SourceLLM SourceType = "llm"
)

// IsValid reports whether t is a known source type.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceDocument, SourceAPI, SourceLLM:
		return true
	}
	return false
}

// DefaultWaterfall is the priority-ordered source tier list used by the
// fusion engine: earlier entries outrank later ones.  The engine takes
// the order as data so tests can exercise alternative waterfalls.
var DefaultWaterfall = []SourceType{SourceDocument, SourceAPI, SourceLLM}

// Confidence grades a candidate assertion.  API matches are High by
// convention; LLM candidates carry whatever grade the collaborator
// assigned.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
	ConfidenceNone   Confidence = "None"
)

// ParseConfidence maps free-form confidence labels onto the known grades,
// defaulting to ConfidenceNone for empty or unrecognised input.
func ParseConfidence(raw string) Confidence {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return ConfidenceHigh
	case "medium", "med":
		return ConfidenceMedium
	case "low":
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// ResolutionUnresolved is the resolution value recorded on a conflict
// that awaits manual review.  Conflict rows are append-only; the value
// never changes in place.
const ResolutionUnresolved = "unresolved"
