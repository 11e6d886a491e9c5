package domain

import (
	"fmt"
)

// ViolationKind represents the kind of a contract violation.
type ViolationKind string

const (
	// ViolationMissingRequiredField means a required field is absent as a
	// column. Table-level: Row is -1.
	ViolationMissingRequiredField ViolationKind = "missing_required_field"
	// ViolationNullInRequiredField means a required column holds an empty
	// cell at the reported row.
	ViolationNullInRequiredField ViolationKind = "null_in_required_field"
	// ViolationTypeMismatch means a cell failed coercion to the column's
	// declared type.
	ViolationTypeMismatch ViolationKind = "type_mismatch"
	// ViolationUnexpectedColumn means the table carries a column the
	// contract does not declare. Only reported at the strict level.
	// Table-level: Row is -1.
	ViolationUnexpectedColumn ViolationKind = "unexpected_column"
)

// Violation represents a single contract violation. Row is the zero-based
// data row index, or -1 for table-level violations.
type Violation struct {
	Row     int           `json:"row"`
	Column  string        `json:"column"`
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
}

// String renders the violation in the form used by quarantine error logs.
func (v Violation) String() string {
	if v.Row < 0 {
		return fmt.Sprintf("%s: column %q: %s", v.Kind, v.Column, v.Message)
	}
	return fmt.Sprintf("%s: row %d, column %q: %s", v.Kind, v.Row, v.Column, v.Message)
}

// ValidationLevel selects how much validation the pipeline applies.
type ValidationLevel string

const (
	// ValidationOff skips contract validation entirely.
	ValidationOff ValidationLevel = "off"
	// ValidationContract checks required fields and declared types.
	ValidationContract ValidationLevel = "contract"
	// ValidationStrict additionally reports columns the contract does not
	// declare, so a renamed or stray source column cannot slip through.
	ValidationStrict ValidationLevel = "strict"
)

// ValidationResult represents the outcome of contract validation: either a
// valid, type-coerced table, or the exhaustive ordered list of violations.
type ValidationResult struct {
	Valid      bool              `json:"is_valid"`
	Table      *TransformedTable `json:"-"`
	Violations []Violation       `json:"errors,omitempty"`
	RowCount   int               `json:"row_count"`
}

// ValidResult wraps a coerced table in a passing result.
func ValidResult(table *TransformedTable) ValidationResult {
	return ValidationResult{Valid: true, Table: table, RowCount: table.RowCount()}
}

// InvalidResult builds a failing result from collected violations.
func InvalidResult(rowCount int, violations []Violation) ValidationResult {
	return ValidationResult{Valid: false, Violations: violations, RowCount: rowCount}
}
