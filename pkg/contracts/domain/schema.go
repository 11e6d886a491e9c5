package domain

import (
	"fmt"
	"strings"
)

// FieldType represents the declared type of a canonical field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
)

// CanonicalField represents one entry in the target schema contract.
type CanonicalField struct {
	Name     string    `json:"name" yaml:"name" validate:"required"`
	Type     FieldType `json:"type" yaml:"type" validate:"required,oneof=string number date boolean"`
	Required bool      `json:"required" yaml:"required"`
	Synonyms []string  `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// Contract represents the canonical schema contract: the ordered set of
// fields that output data must satisfy. Loaded once per process, read-only
// afterwards.
type Contract struct {
	Fields []CanonicalField `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
}

// Validate checks contract-level invariants: at least one field, unique
// field names, known types.
func (c *Contract) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("contract has no fields")
	}
	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("contract field with empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate contract field %q", name)
		}
		seen[name] = true
		switch f.Type {
		case FieldTypeString, FieldTypeNumber, FieldTypeDate, FieldTypeBoolean:
		default:
			return fmt.Errorf("contract field %q has unknown type %q", name, f.Type)
		}
	}
	return nil
}

// Field returns the named field and whether it exists.
func (c *Contract) Field(name string) (CanonicalField, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return CanonicalField{}, false
}

// FieldNames returns the field names in contract order.
func (c *Contract) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// RequiredFields returns the names of all required fields in contract order.
func (c *Contract) RequiredFields() []string {
	var names []string
	for _, f := range c.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}
