package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// Violation is one broken rule on one record.
type Violation struct {
	RecordIndex int              `json:"record_index"`
	Field       string           `json:"field"`
	Code        errors.ErrorCode `json:"code"`
	Message     string           `json:"message"`
}

// ReportRow is one line of the diagnostic report: either a violation or a
// pass marker for a clean record.
type ReportRow struct {
	RecordIndex int    `json:"record_index"`
	Field       string `json:"field,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message"`
	Passed      bool   `json:"passed"`
}

// Report is the outcome of validating one dataset.
type Report struct {
	RecordType string      `json:"record_type"`
	Records    int         `json:"records"`
	Violations int         `json:"violations"`
	Valid      bool        `json:"valid"`
	Rows       []ReportRow `json:"rows"`
}

// Validator checks datasets against a loaded schema.  It never mutates
// its input.
type Validator struct {
	schema *SchemaDefinition
	logger logging.Logger
}

// NewValidator returns a Validator over the given schema.
func NewValidator(schema *SchemaDefinition, logger logging.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Validator{schema: schema, logger: logger.Named("validation")}
}

// ValidateDataset decodes and validates a raw dataset against the named
// record type.  Accepted input shapes: a bare JSON array, an object
// wrapping the array under the record-type key, or a single record
// object.  The dataset is valid iff every record is.
func (v *Validator) ValidateDataset(recordType string, raw []byte) (*Report, error) {
	def, err := v.schema.Definition(recordType)
	if err != nil {
		return nil, err
	}
	records, err := unwrap(recordType, raw)
	if err != nil {
		return nil, err
	}

	report := &Report{RecordType: recordType, Records: len(records), Valid: true}
	for i, rec := range records {
		violations := v.validateRecord(def, rec, i)
		if len(violations) == 0 {
			report.Rows = append(report.Rows, ReportRow{
				RecordIndex: i,
				Message:     "record valid",
				Passed:      true,
			})
			continue
		}
		report.Valid = false
		report.Violations += len(violations)
		for _, viol := range violations {
			report.Rows = append(report.Rows, ReportRow{
				RecordIndex: viol.RecordIndex,
				Field:       viol.Field,
				Code:        viol.Code.String(),
				Message:     viol.Message,
			})
		}
	}

	v.logger.Info("dataset validated",
		logging.String("record_type", recordType),
		logging.Int("records", report.Records),
		logging.Int("violations", report.Violations),
		logging.Bool("valid", report.Valid),
	)
	return report, nil
}

// unwrap accepts the three input shapes and returns the record list.
func unwrap(recordType string, raw []byte) ([]map[string]interface{}, error) {
	var bare []map[string]interface{}
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactRead, "dataset is neither an array nor an object")
	}
	if inner, ok := wrapped[recordType]; ok {
		var list []map[string]interface{}
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeArtifactRead,
				fmt.Sprintf("key %q is not a record array", recordType))
		}
		return list, nil
	}

	// A single record object.
	var single map[string]interface{}
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactRead, "dataset object is not a record")
	}
	return []map[string]interface{}{single}, nil
}

// validateRecord collects every violation in one record.  Checks run in a
// fixed order (required, cross-field, then per-field) and per-field in
// sorted key order, so report output is deterministic.
func (v *Validator) validateRecord(def *RecordSchema, rec map[string]interface{}, index int) []Violation {
	var out []Violation

	for _, key := range def.Required {
		if _, present := rec[key]; !present {
			out = append(out, Violation{
				RecordIndex: index,
				Field:       key,
				Code:        errors.ErrCodeValidationRequired,
				Message:     fmt.Sprintf("required field %q is missing", key),
			})
		}
	}

	for _, group := range def.AnyOf {
		if !anyPopulated(rec, group) {
			out = append(out, Violation{
				RecordIndex: index,
				Field:       strings.Join(group, "|"),
				Code:        errors.ErrCodeValidationCrossField,
				Message:     fmt.Sprintf("at least one of %s must be populated", strings.Join(group, ", ")),
			})
		}
	}

	for _, key := range sortedKeys(def.Properties) {
		value, present := rec[key]
		if !present || value == nil {
			// Absence is the required list's business; null passes.
			continue
		}
		out = append(out, checkValue(def.Properties[key], key, value, index)...)
	}

	return out
}

// anyPopulated reports whether at least one of the fields carries a
// usable value: present, non-null, and not an empty string.
func anyPopulated(rec map[string]interface{}, fields []string) bool {
	for _, f := range fields {
		value, present := rec[f]
		if !present || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return true
	}
	return false
}

// checkValue validates one non-null value against its field schema,
// recursing into objects and arrays.
func checkValue(fs *FieldSchema, path string, value interface{}, index int) []Violation {
	var out []Violation

	if fs.Type != "" && !typeMatches(fs.Type, value) {
		out = append(out, Violation{
			RecordIndex: index,
			Field:       path,
			Code:        errors.ErrCodeValidationType,
			Message:     fmt.Sprintf("field %q expects %s, got %T", path, fs.Type, value),
		})
		return out
	}

	if len(fs.Enum) > 0 {
		if s, ok := value.(string); ok && !contains(fs.Enum, s) {
			out = append(out, Violation{
				RecordIndex: index,
				Field:       path,
				Code:        errors.ErrCodeValidationVocabulary,
				Message:     fmt.Sprintf("field %q value %q is not in the controlled vocabulary", path, s),
			})
		}
	}

	if len(fs.Properties) > 0 {
		obj, ok := value.(map[string]interface{})
		if ok {
			for _, key := range sortedKeys(fs.Properties) {
				sub, present := obj[key]
				subPath := path + "." + key
				if !present {
					out = append(out, Violation{
						RecordIndex: index,
						Field:       subPath,
						Code:        errors.ErrCodeValidationStructure,
						Message:     fmt.Sprintf("key %q is missing", subPath),
					})
					continue
				}
				if sub == nil {
					continue
				}
				out = append(out, checkValue(fs.Properties[key], subPath, sub, index)...)
			}
		}
	}

	if fs.Items != nil {
		if list, ok := value.([]interface{}); ok {
			for i, elem := range list {
				if elem == nil {
					continue
				}
				out = append(out, checkValue(fs.Items, fmt.Sprintf("%s[%d]", path, i), elem, index)...)
			}
		}
	}

	return out
}

func typeMatches(declared string, value interface{}) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]*FieldSchema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
