package validation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapipe/pkg/contracts/domain"
)

func testContract() *domain.Contract {
	return &domain.Contract{Fields: []domain.CanonicalField{
		{Name: "order_id", Type: domain.FieldTypeString, Required: true},
		{Name: "order_date", Type: domain.FieldTypeDate, Required: true},
		{Name: "customer_id", Type: domain.FieldTypeString, Required: true},
		{Name: "product", Type: domain.FieldTypeString},
		{Name: "quantity", Type: domain.FieldTypeNumber},
		{Name: "sales_amount", Type: domain.FieldTypeNumber},
		{Name: "provider_id", Type: domain.FieldTypeString},
	}}
}

func newTestValidator() *Validator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewValidator(testContract(), logger)
}

func newTable(columns []string, rows ...[]string) *domain.TransformedTable {
	t := domain.NewTransformedTable(columns)
	t.Rows = append(t.Rows, rows...)
	return t
}

func TestValidate_ValidTableIsCoerced(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"order_id", "order_date", "customer_id", "quantity", "sales_amount"},
		[]string{"A-1", "15/03/2024", "C-9", "2", "1,234.50"},
		[]string{"A-2", "2024-03-16", "C-9", "  ", "99"},
	)

	result := v.Validate(table, nil, domain.ValidationContract)

	require.True(t, result.Valid)
	require.Empty(t, result.Violations)
	assert.Equal(t, 2, result.RowCount)

	require.NotNil(t, result.Table)
	assert.Equal(t, "2024-03-15", result.Table.Cell(0, 1))
	assert.Equal(t, "1234.5", result.Table.Cell(0, 4))
	assert.Equal(t, "2", result.Table.Cell(0, 3))
	assert.Equal(t, "", result.Table.Cell(1, 3), "empty optional typed cell should normalize")

	assert.NotSame(t, table, result.Table)
	assert.Equal(t, "1,234.50", table.Cell(0, 4), "input table must not be mutated")
	assert.Equal(t, "15/03/2024", table.Cell(0, 1))
}

func TestValidate_MissingRequiredField(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"order_id", "order_date"},
		[]string{"A-1", "2024-03-15"},
	)

	result := v.Validate(table, nil, domain.ValidationContract)

	require.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, domain.ViolationMissingRequiredField, result.Violations[0].Kind)
	assert.Equal(t, "customer_id", result.Violations[0].Column)
	assert.Equal(t, -1, result.Violations[0].Row)
	assert.Nil(t, result.Table)
	assert.Equal(t, 1, result.RowCount)
}

func TestValidate_ExhaustiveAcrossRows(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"order_id", "order_date", "customer_id"},
		[]string{"", "2024-01-02", "C-1"},
		[]string{"A-2", "not a date", "C-2"},
		[]string{"A-3", "2024-01-04", ""},
	)

	result := v.Validate(table, nil, domain.ValidationContract)

	require.False(t, result.Valid)
	require.Len(t, result.Violations, 3, "all violations must be reported, not just the first")

	assert.Equal(t, domain.ViolationNullInRequiredField, result.Violations[0].Kind)
	assert.Equal(t, "order_id", result.Violations[0].Column)
	assert.Equal(t, 0, result.Violations[0].Row)

	assert.Equal(t, domain.ViolationTypeMismatch, result.Violations[1].Kind)
	assert.Equal(t, "order_date", result.Violations[1].Column)
	assert.Equal(t, 1, result.Violations[1].Row)
	assert.Contains(t, result.Violations[1].Message, `"not a date"`)

	assert.Equal(t, domain.ViolationNullInRequiredField, result.Violations[2].Kind)
	assert.Equal(t, "customer_id", result.Violations[2].Column)
	assert.Equal(t, 2, result.Violations[2].Row)

	assert.Equal(t, "not a date", table.Cell(1, 1), "invalid input must stay unmodified")
}

func TestValidate_MissingColumnsComeFirst(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"order_id", "order_date"},
		[]string{"", "2024-01-02"},
	)

	result := v.Validate(table, nil, domain.ValidationContract)

	require.False(t, result.Valid)
	require.Len(t, result.Violations, 2)
	assert.Equal(t, domain.ViolationMissingRequiredField, result.Violations[0].Kind)
	assert.Equal(t, "customer_id", result.Violations[0].Column)
	assert.Equal(t, domain.ViolationNullInRequiredField, result.Violations[1].Kind)
	assert.Equal(t, "order_id", result.Violations[1].Column)
}

func TestValidate_OffPassesThrough(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"whatever"},
		[]string{"not even close to the contract"},
	)

	result := v.Validate(table, nil, domain.ValidationOff)

	require.True(t, result.Valid)
	assert.Empty(t, result.Violations)
	assert.Same(t, table, result.Table)
}

func TestValidate_StrictFlagsUnexpectedColumns(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"order_id", "order_date", "customer_id", "internal_note", "source_sheet"},
		[]string{"A-1", "2024-03-15", "C-9", "call back", "Q1"},
	)

	contract := v.Validate(table, nil, domain.ValidationContract)
	require.True(t, contract.Valid, "extra columns are fine below strict")

	strict := v.Validate(table, nil, domain.ValidationStrict)
	require.False(t, strict.Valid)
	require.Len(t, strict.Violations, 1, "source_sheet is engine-derived and must not be flagged")
	assert.Equal(t, domain.ViolationUnexpectedColumn, strict.Violations[0].Kind)
	assert.Equal(t, "internal_note", strict.Violations[0].Column)
	assert.Equal(t, -1, strict.Violations[0].Row)
}

func TestValidate_UnknownLevelActsAsContract(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"order_id", "order_date", "customer_id", "internal_note"},
		[]string{"A-1", "2024-03-15", "C-9", "x"},
	)

	result := v.Validate(table, nil, domain.ValidationLevel("paranoid"))

	assert.True(t, result.Valid, "unknown levels should fall back to contract checks")
}

func TestValidate_TemplateFieldTypeOverrides(t *testing.T) {
	v := newTestValidator()
	tpl := domain.NewTemplate("acme-orders")
	tpl.FieldTypes = map[string]string{
		"quantity":   "string",
		"batch_code": "int",
	}

	table := newTable(
		[]string{"order_id", "order_date", "customer_id", "quantity", "batch_code"},
		[]string{"A-1", "2024-03-15", "C-9", "12 boxes", "7"},
	)
	result := v.Validate(table, tpl, domain.ValidationContract)
	require.True(t, result.Valid, "quantity overridden to string must accept free text")
	assert.Equal(t, "12 boxes", result.Table.Cell(0, 3))
	assert.Equal(t, "7", result.Table.Cell(0, 4))

	bad := newTable(
		[]string{"order_id", "order_date", "customer_id", "batch_code"},
		[]string{"A-1", "2024-03-15", "C-9", "unknown"},
	)
	result = v.Validate(bad, tpl, domain.ValidationContract)
	require.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, domain.ViolationTypeMismatch, result.Violations[0].Kind)
	assert.Equal(t, "batch_code", result.Violations[0].Column)
}

func TestValidate_TemplateRequiredFieldsReplace(t *testing.T) {
	v := newTestValidator()
	table := newTable(
		[]string{"order_id", "order_date"},
		[]string{"A-1", ""},
	)

	base := v.Validate(table, nil, domain.ValidationContract)
	require.False(t, base.Valid, "contract requires customer_id and a non-empty order_date")

	tpl := domain.NewTemplate("acme-orders")
	tpl.RequiredFields = []string{"order_id"}
	relaxed := v.Validate(table, tpl, domain.ValidationContract)
	assert.True(t, relaxed.Valid, "template required_fields replaces the contract's required set")

	tpl.RequiredFields = []string{"order_id", "batch_code"}
	extended := v.Validate(table, tpl, domain.ValidationContract)
	require.False(t, extended.Valid)
	require.Len(t, extended.Violations, 1)
	assert.Equal(t, domain.ViolationMissingRequiredField, extended.Violations[0].Kind)
	assert.Equal(t, "batch_code", extended.Violations[0].Column)
}

func TestValidate_UnknownFieldTypeOverrideIgnored(t *testing.T) {
	v := newTestValidator()
	tpl := domain.NewTemplate("acme-orders")
	tpl.FieldTypes = map[string]string{"quantity": "decimalish"}

	table := newTable(
		[]string{"order_id", "order_date", "customer_id", "quantity"},
		[]string{"A-1", "2024-03-15", "C-9", "abc"},
	)

	result := v.Validate(table, tpl, domain.ValidationContract)

	require.False(t, result.Valid, "unknown override types keep the contract type")
	require.Len(t, result.Violations, 1)
	assert.Equal(t, domain.ViolationTypeMismatch, result.Violations[0].Kind)
	assert.Equal(t, "quantity", result.Violations[0].Column)
}

func TestValidate_StrictRespectsFieldTypeAdditions(t *testing.T) {
	v := newTestValidator()
	tpl := domain.NewTemplate("acme-orders")
	tpl.FieldTypes = map[string]string{"batch_code": "string"}

	table := newTable(
		[]string{"order_id", "order_date", "customer_id", "batch_code"},
		[]string{"A-1", "2024-03-15", "C-9", "B7"},
	)

	result := v.Validate(table, tpl, domain.ValidationStrict)

	assert.True(t, result.Valid, "columns added through field_types are part of the effective schema")
}
