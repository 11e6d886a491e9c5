package validation

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"schemapipe/internal/transform"
	"schemapipe/pkg/contracts/domain"
)

// Validator checks transformed tables against the canonical contract,
// layered with any per-template overrides. Validation is exhaustive: every
// violation in the table is collected before the verdict, never just the
// first one.
type Validator struct {
	contract *domain.Contract
	logger   *slog.Logger
}

// NewValidator creates a contract validator. The contract is shared
// read-only and must outlive the validator.
func NewValidator(contract *domain.Contract, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		contract: contract,
		logger:   logger,
	}
}

// Validate checks table against the effective schema for tpl at the given
// level. At ValidationOff the table passes through untouched. Otherwise the
// result is either Valid with a coerced copy of the table (numbers without
// separators, dates as 2006-01-02, booleans as true/false), or Invalid with
// the full ordered violation list and the input left unmodified. Unknown
// levels validate at ValidationContract.
func (v *Validator) Validate(table *domain.TransformedTable, tpl *domain.Template, level domain.ValidationLevel) domain.ValidationResult {
	if level == domain.ValidationOff {
		v.logger.Debug("contract validation skipped",
			slog.Int("rows", table.RowCount()))
		return domain.ValidResult(table)
	}

	fields := v.effectiveFields(tpl)
	var violations []domain.Violation

	// Table-level checks first: required columns that never got mapped,
	// then, at strict level, columns the schema does not know about.
	for _, f := range fields {
		if f.Required && !table.HasColumn(f.Name) {
			violations = append(violations, domain.Violation{
				Row:     -1,
				Column:  f.Name,
				Kind:    domain.ViolationMissingRequiredField,
				Message: "required field has no mapped column",
			})
		}
	}
	if level == domain.ValidationStrict {
		declared := make(map[string]bool, len(fields))
		for _, f := range fields {
			declared[f.Name] = true
		}
		for _, col := range table.Columns {
			if declared[col] || col == transform.SourceSheetColumn {
				continue
			}
			violations = append(violations, domain.Violation{
				Row:     -1,
				Column:  col,
				Kind:    domain.ViolationUnexpectedColumn,
				Message: "column is not declared by the contract",
			})
		}
	}

	// Cell-level checks, column by column in schema order. The coerced
	// copy is built in the same pass and only returned on a clean table.
	coerced := table.Clone()
	for _, f := range fields {
		idx := table.ColumnIndex(f.Name)
		if idx < 0 {
			continue
		}
		for rowIdx := range table.Rows {
			cell := table.Cell(rowIdx, idx)
			if strings.TrimSpace(cell) == "" {
				if f.Required {
					violations = append(violations, domain.Violation{
						Row:     rowIdx,
						Column:  f.Name,
						Kind:    domain.ViolationNullInRequiredField,
						Message: "required field is empty",
					})
				} else if f.Type != domain.FieldTypeString {
					setCell(coerced, rowIdx, idx, "")
				}
				continue
			}
			if f.Type == domain.FieldTypeString {
				continue
			}
			value, ok := transform.CoerceValue(cell, f.Type)
			if !ok {
				violations = append(violations, domain.Violation{
					Row:     rowIdx,
					Column:  f.Name,
					Kind:    domain.ViolationTypeMismatch,
					Message: fmt.Sprintf("cannot parse %q as %s", cell, f.Type),
				})
				continue
			}
			setCell(coerced, rowIdx, idx, value)
		}
	}

	if len(violations) > 0 {
		v.logger.Warn("contract validation failed",
			slog.String("level", string(level)),
			slog.Int("rows", table.RowCount()),
			slog.Int("violations", len(violations)))
		return domain.InvalidResult(table.RowCount(), violations)
	}

	v.logger.Debug("contract validation passed",
		slog.String("level", string(level)),
		slog.Int("rows", table.RowCount()))
	return domain.ValidResult(coerced)
}

// effectiveFields layers template overrides over the contract: field type
// overrides first, then a non-empty RequiredFields list replaces the
// contract's required set outright. Overridden names the contract does not
// know become additional fields, so provider-specific extras can still be
// typed and required.
func (v *Validator) effectiveFields(tpl *domain.Template) []domain.CanonicalField {
	fields := append([]domain.CanonicalField(nil), v.contract.Fields...)
	if tpl == nil {
		return fields
	}

	if len(tpl.FieldTypes) > 0 {
		names := make([]string, 0, len(tpl.FieldTypes))
		for name := range tpl.FieldTypes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ft, ok := normalizeFieldType(tpl.FieldTypes[name])
			if !ok {
				v.logger.Warn("ignoring unknown field type override",
					slog.String("template", tpl.Key),
					slog.String("field", name),
					slog.String("type", tpl.FieldTypes[name]))
				continue
			}
			if i := fieldIndex(fields, name); i >= 0 {
				fields[i].Type = ft
			} else {
				fields = append(fields, domain.CanonicalField{Name: name, Type: ft})
			}
		}
	}

	if len(tpl.RequiredFields) > 0 {
		for i := range fields {
			fields[i].Required = false
		}
		for _, name := range tpl.RequiredFields {
			if i := fieldIndex(fields, name); i >= 0 {
				fields[i].Required = true
			} else {
				fields = append(fields, domain.CanonicalField{
					Name:     name,
					Type:     domain.FieldTypeString,
					Required: true,
				})
			}
		}
	}
	return fields
}

// normalizeFieldType maps the loose type names accepted in template
// field_types to a canonical field type.
func normalizeFieldType(raw string) (domain.FieldType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "number", "numeric", "float", "int", "integer":
		return domain.FieldTypeNumber, true
	case "date", "datetime":
		return domain.FieldTypeDate, true
	case "bool", "boolean":
		return domain.FieldTypeBoolean, true
	case "str", "string", "text":
		return domain.FieldTypeString, true
	}
	return "", false
}

func fieldIndex(fields []domain.CanonicalField, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// setCell writes a cell, tolerating ragged rows.
func setCell(t *domain.TransformedTable, row, col int, value string) {
	if row < 0 || row >= len(t.Rows) {
		return
	}
	if col < 0 || col >= len(t.Rows[row]) {
		return
	}
	t.Rows[row][col] = value
}
