// Package validation checks detection datasets against a declarative
// schema document.  The validator reports; it never repairs.  Every
// violation in a record is collected before moving on, so one diagnostic
// run paints the complete picture.
package validation

import (
	"encoding/json"
	"os"

	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// FieldSchema declares the expected shape of one field.  Types follow
// JSON: "string", "number", "integer", "boolean", "object", "array".
// Null values pass type and enum checks; only absence is ever a
// violation.
type FieldSchema struct {
	Type string   `json:"type,omitempty"`
	Enum []string `json:"enum,omitempty"`

	// Properties declares the keys an object value must carry.  Presence
	// is checked recursively; a present-but-null key passes.
	Properties map[string]*FieldSchema `json:"properties,omitempty"`

	// Items is the schema applied to every element of an array value.
	Items *FieldSchema `json:"items,omitempty"`
}

// RecordSchema declares the rules for one record type.
type RecordSchema struct {
	// Required lists keys that must be present on every record.
	Required []string `json:"required,omitempty"`

	// AnyOf lists cross-field rules: each group requires at least one of
	// its fields to carry a non-empty value.
	AnyOf [][]string `json:"anyOf,omitempty"`

	Properties map[string]*FieldSchema `json:"properties,omitempty"`
}

// SchemaDefinition is the full schema document: one RecordSchema per
// record type.
type SchemaDefinition struct {
	Definitions map[string]*RecordSchema `json:"definitions"`
}

var knownTypes = map[string]struct{}{
	"string": {}, "number": {}, "integer": {}, "boolean": {}, "object": {}, "array": {},
}

// LoadSchema reads and checks a schema document.  Any defect in the
// document itself is a configuration error and fatal: a run must never
// start validating against rules it cannot trust.
func LoadSchema(path string) (*SchemaDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigPathMissing, "reading schema document").
			WithDetail("path=" + path)
	}
	return ParseSchema(data)
}

// ParseSchema decodes and checks a schema document from raw bytes.
func ParseSchema(data []byte) (*SchemaDefinition, error) {
	var schema SchemaDefinition
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSchemaInvalid, "decoding schema document")
	}
	if len(schema.Definitions) == 0 {
		return nil, errors.New(errors.ErrCodeSchemaInvalid, "schema document declares no definitions")
	}
	for name, def := range schema.Definitions {
		if def == nil {
			return nil, errors.Newf(errors.ErrCodeSchemaInvalid, "definition %q is null", name)
		}
		for field, fs := range def.Properties {
			if err := checkFieldSchema(name+"."+field, fs); err != nil {
				return nil, err
			}
		}
		for _, group := range def.AnyOf {
			if len(group) == 0 {
				return nil, errors.Newf(errors.ErrCodeSchemaInvalid, "definition %q has an empty anyOf group", name)
			}
		}
	}
	return &schema, nil
}

func checkFieldSchema(path string, fs *FieldSchema) error {
	if fs == nil {
		return errors.Newf(errors.ErrCodeSchemaInvalid, "field %q is null", path)
	}
	if fs.Type != "" {
		if _, ok := knownTypes[fs.Type]; !ok {
			return errors.Newf(errors.ErrCodeSchemaInvalid, "field %q has unknown type %q", path, fs.Type)
		}
	}
	if len(fs.Enum) > 0 && fs.Type != "" && fs.Type != "string" {
		return errors.Newf(errors.ErrCodeSchemaInvalid, "field %q declares an enum on non-string type %q", path, fs.Type)
	}
	for sub, nested := range fs.Properties {
		if err := checkFieldSchema(path+"."+sub, nested); err != nil {
			return err
		}
	}
	if fs.Items != nil {
		if err := checkFieldSchema(path+"[]", fs.Items); err != nil {
			return err
		}
	}
	return nil
}

// Definition returns the schema for a record type, or an error when the
// type is not declared.
func (s *SchemaDefinition) Definition(recordType string) (*RecordSchema, error) {
	def, ok := s.Definitions[recordType]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSchemaInvalid, "no definition for record type %q", recordType)
	}
	return def, nil
}
