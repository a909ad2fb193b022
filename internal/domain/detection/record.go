// Package detection models the MS detection records flowing through the
// pipeline.  A detection row references a compound by name/CAS (weak
// reference, lookup only) and carries nested measurement fields that this
// core never interprets: records are kept as raw JSON objects and only the
// two identity fields are ever read or written.
package detection

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// Identity field names as they appear in the extracted corpus.
const (
	FieldCASNumber    = "CAS_number"
	FieldCompoundName = "compound_english_name"
	FieldMethodID     = "method_id"
	FieldSourceFile   = "_source_file"
)

// Record is one detection row: an open JSON object.  Measurement fields
// (mass_spec_params, performance_parameters, ...) pass through untouched.
type Record map[string]interface{}

// stringField returns the trimmed string value of a field, treating
// non-strings and missing-value markers as absent.
func (r Record) stringField(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none", "null":
		return ""
	}
	return s
}

// CAS returns the record's CAS number, empty when absent.
func (r Record) CAS() string { return compound.NormalizeCAS(r.stringField(FieldCASNumber)) }

// CompoundName returns the record's compound name, empty when absent.
func (r Record) CompoundName() string { return r.stringField(FieldCompoundName) }

// CompoundKey returns the normalized name used to look the record's
// compound up in the catalog.
func (r Record) CompoundKey() string { return compound.NormalizeName(r.CompoundName()) }

// SetCAS writes the CAS identity field.  Callers must only fill missing
// values; overwrites are the propagator's responsibility to prevent.
func (r Record) SetCAS(cas string) { r[FieldCASNumber] = cas }

// SetCompoundName writes the name identity field.
func (r Record) SetCompoundName(name string) { r[FieldCompoundName] = name }

// HasIdentity reports whether the record carries at least one identity
// field, the minimum for catalog participation.
func (r Record) HasIdentity() bool {
	return r.CAS() != "" || r.CompoundName() != ""
}

// CheckStructure verifies the structural minimum for a detection record:
// it must be a JSON object (guaranteed by the type) carrying at least one
// identity field.  Structurally broken records are excluded from catalog
// construction and counted, never silently dropped.
func (r Record) CheckStructure() error {
	if r == nil {
		return errors.New(errors.ErrCodeRecordStructural, "detection record is null")
	}
	if !r.HasIdentity() {
		return errors.New(errors.ErrCodeRecordStructural,
			"detection record carries neither CAS_number nor compound_english_name").
			WithDetail("method_id=" + r.stringField(FieldMethodID))
	}
	return nil
}

// Clone returns a deep copy of the record so corpus rewrites never alias
// the input.
func (r Record) Clone() Record {
	raw, err := json.Marshal(r)
	if err != nil {
		// A Record started life as decoded JSON; re-encoding cannot fail.
		panic(fmt.Sprintf("detection: clone marshal: %v", err))
	}
	var out Record
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("detection: clone unmarshal: %v", err))
	}
	return out
}

// Corpus is an ordered collection of detection records.  Order is
// preserved end to end so reruns are byte-comparable.
type Corpus []Record

// DecodeCorpus parses a corpus artifact.  It accepts the two shapes the
// upstream normalizer emits: a bare JSON array, or an object wrapping the
// array under "detections".
func DecodeCorpus(raw []byte) (Corpus, error) {
	var direct []Record
	if err := json.Unmarshal(raw, &direct); err == nil {
		return Corpus(direct), nil
	}

	var wrapped struct {
		Detections []Record `json:"detections"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Detections != nil {
		return Corpus(wrapped.Detections), nil
	}

	return nil, errors.New(errors.ErrCodeRecordStructural,
		"corpus is neither a JSON array nor an object with a detections key")
}
