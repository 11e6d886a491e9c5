package transform

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "schemapipe/internal/errors"
	"schemapipe/pkg/contracts/domain"
)

func testContract() *domain.Contract {
	return &domain.Contract{Fields: []domain.CanonicalField{
		{Name: "order_id", Type: domain.FieldTypeString, Required: true},
		{Name: "product", Type: domain.FieldTypeString},
		{Name: "quantity", Type: domain.FieldTypeNumber},
		{Name: "sales_amount", Type: domain.FieldTypeNumber},
		{Name: "report_date", Type: domain.FieldTypeDate},
	}}
}

func newTestEngine(cfg Config) *Engine {
	return NewEngine(testContract(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTable(columns []string, rows ...[]string) *domain.TransformedTable {
	t := domain.NewTransformedTable(columns)
	t.Rows = append(t.Rows, rows...)
	return t
}

func TestFrame(t *testing.T) {
	raw := &domain.RawTable{SourceFile: "t.xlsx", Rows: [][]string{
		{"Quarterly Report"},
		{"A", "B", "C"},
		{"1", "2", "3"},
		{"4", "5"},
		{"6", "7", "8", "9"},
	}}
	spec := domain.HeaderSpec{HeaderRows: []int{1}, Labels: []string{"A", "B", "C"}, DataStart: 2}

	got := Frame(raw, spec)

	assert.Equal(t, []string{"A", "B", "C"}, got.Columns)
	assert.Equal(t, [][]string{
		{"1", "2", "3"},
		{"4", "5", ""},
		{"6", "7", "8"},
	}, got.Rows)
}

func TestApplyMapping_ProjectsInContractOrder(t *testing.T) {
	e := newTestEngine(Config{})
	in := newTable([]string{"Amount", "Order #", "Notes", "Qty"},
		[]string{"9.50", "A-1", "hello", "2"},
		[]string{"3.00", "A-2", "", "1"},
	)
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Order #", Target: "order_id"},
		{RawHeader: "Qty", Target: "quantity"},
		{RawHeader: "Amount", Target: "sales_amount"},
		{RawHeader: "Notes"},
	}}

	out, dropped := e.ApplyMapping(in, mapping, false)

	assert.Equal(t, []string{"order_id", "quantity", "sales_amount"}, out.Columns)
	assert.Equal(t, [][]string{
		{"A-1", "2", "9.50"},
		{"A-2", "1", "3.00"},
	}, out.Rows)
	assert.Equal(t, []string{"Notes"}, dropped)

	// The input is untouched.
	assert.Equal(t, []string{"Amount", "Order #", "Notes", "Qty"}, in.Columns)
	assert.Equal(t, "hello", in.Cell(0, 2))
}

func TestApplyMapping_NonContractTargetsComeLast(t *testing.T) {
	e := newTestEngine(Config{})
	in := newTable([]string{"Batch", "Order #"}, []string{"B7", "A-1"})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Batch", Target: "batch_label", Origin: domain.OriginUserOverride},
		{RawHeader: "Order #", Target: "order_id"},
	}}

	out, dropped := e.ApplyMapping(in, mapping, false)

	assert.Equal(t, []string{"order_id", "batch_label"}, out.Columns)
	assert.Equal(t, [][]string{{"A-1", "B7"}}, out.Rows)
	assert.Empty(t, dropped)
}

func TestApplyMapping_KeepsUnmappedForUnpivot(t *testing.T) {
	e := newTestEngine(Config{})
	in := newTable([]string{"Product Name", "2020_Jan", "2020_Feb"},
		[]string{"Widget", "10", "20"},
	)
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Product Name", Target: "product"},
	}}

	out, dropped := e.ApplyMapping(in, mapping, true)

	assert.Equal(t, []string{"product", "2020_Jan", "2020_Feb"}, out.Columns)
	assert.Equal(t, [][]string{{"Widget", "10", "20"}}, out.Rows)
	assert.Empty(t, dropped)
}

func TestCombine_AppendsSourceSheet(t *testing.T) {
	e := newTestEngine(Config{})
	q1 := newTable([]string{"product", "quantity"}, []string{"Widget", "5"})
	q2 := newTable([]string{"quantity", "product"}, []string{"3", "Gadget"})

	out, err := e.Combine([]Sheet{{Name: "Q1", Table: q1}, {Name: "Q2", Table: q2}})

	require.NoError(t, err)
	assert.Equal(t, []string{"product", "quantity", "source_sheet"}, out.Columns)
	assert.Equal(t, [][]string{
		{"Widget", "5", "Q1"},
		{"Gadget", "3", "Q2"},
	}, out.Rows)
}

func TestCombine_SchemaMismatchNamesSheet(t *testing.T) {
	e := newTestEngine(Config{})
	q1 := newTable([]string{"product", "quantity"}, []string{"Widget", "5"})
	q2 := newTable([]string{"product"}, []string{"Gadget"})

	_, err := e.Combine([]Sheet{{Name: "Q1", Table: q1}, {Name: "Q2", Table: q2}})

	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrSheetSchemaMismatch)
	assert.Contains(t, err.Error(), `"Q2"`)
}

func TestRun_CombinesSheetsThroughOneMapping(t *testing.T) {
	e := newTestEngine(Config{})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Order #", Target: "order_id"},
		{RawHeader: "Qty", Target: "quantity"},
		{RawHeader: "Junk"},
	}}
	q1 := Sheet{Name: "Q1", Table: newTable([]string{"Order #", "Qty", "Junk"},
		[]string{"A-1", "5", "x"},
		[]string{"A-2", "3", "y"},
	)}
	q2 := Sheet{Name: "Q2", Table: newTable([]string{"Order #", "Qty", "Junk"},
		[]string{"B-9", "7", "z"},
	)}
	tpl := domain.NewTemplate("combined")

	res, err := e.Run([]Sheet{q1, q2}, mapping, tpl, "sales.xlsx")

	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "quantity", "source_sheet", "provider_id"}, res.Table.Columns)
	assert.Equal(t, 3, res.Table.RowCount())
	assert.Equal(t, []string{"Q1", "Q1", "Q2"}, res.Table.Column("source_sheet"))
	assert.Equal(t, []string{"sales.xlsx", "sales.xlsx", "sales.xlsx"}, res.Table.Column("provider_id"))

	assert.Equal(t, 3, res.Metrics.RowsIn)
	assert.Equal(t, 3, res.Metrics.RowsOut)
	assert.Equal(t, 2, res.Metrics.SheetsCombined)
	assert.Equal(t, []string{"Junk"}, res.Metrics.DroppedColumns)
}

func TestRun_UnpivotStacksValueColumns(t *testing.T) {
	e := newTestEngine(Config{})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Product Name", Target: "product"},
	}}
	sheet := Sheet{Name: "Sheet1", Table: newTable([]string{"Product Name", "2020_Jan", "2020_Feb"},
		[]string{"Widget", "10", "20"},
		[]string{"Gadget", "30", "40"},
	)}
	tpl := domain.NewTemplate("wide")
	tpl.Provider = "acme"
	tpl.Unpivot = &domain.UnpivotSpec{}
	tpl.Cleanup.TrimStrings = false

	res, err := e.Run([]Sheet{sheet}, mapping, tpl, "wide.xlsx")

	require.NoError(t, err)
	assert.Equal(t, []string{"product", "report_date", "sales_amount", "provider_id"}, res.Table.Columns)
	assert.Equal(t, [][]string{
		{"Widget", "2020_Jan", "10", "acme"},
		{"Gadget", "2020_Jan", "30", "acme"},
		{"Widget", "2020_Feb", "20", "acme"},
		{"Gadget", "2020_Feb", "40", "acme"},
	}, res.Table.Rows)
	assert.Equal(t, 2, res.Metrics.RowsIn)
	assert.Equal(t, 4, res.Metrics.RowsOut)
	assert.Equal(t, 2, res.Metrics.StackedColumns)
}

func TestRun_UnpivotRoundTrip(t *testing.T) {
	e := newTestEngine(Config{})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Product", Target: "product"},
	}}
	wide := newTable([]string{"Product", "Jan", "Feb", "Mar"},
		[]string{"Widget", "1", "2", "3"},
		[]string{"Gadget", "4", "", "6"},
	)
	tpl := &domain.Template{Key: "roundtrip", Unpivot: &domain.UnpivotSpec{}}

	res, err := e.Run([]Sheet{{Name: "S", Table: wide}}, mapping, tpl, "")
	require.NoError(t, err)

	// Re-pivot: spread the category/value pairs back into wide cells and
	// compare against the original table.
	long := res.Table
	pivoted := make(map[string]map[string]string)
	prodIdx := long.ColumnIndex("product")
	varIdx := long.ColumnIndex("report_date")
	valIdx := long.ColumnIndex("sales_amount")
	for _, row := range long.Rows {
		prod := row[prodIdx]
		if pivoted[prod] == nil {
			pivoted[prod] = make(map[string]string)
		}
		pivoted[prod][row[varIdx]] = row[valIdx]
	}

	for _, row := range wide.Rows {
		prod := row[0]
		for c := 1; c < len(wide.Columns); c++ {
			assert.Equal(t, row[c], pivoted[prod][wide.Columns[c]],
				"%s/%s", prod, wide.Columns[c])
		}
	}
}

func TestRun_AggregatesOnCombineKeys(t *testing.T) {
	e := newTestEngine(Config{})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Product", Target: "product"},
		{RawHeader: "Amount", Target: "sales_amount"},
		{RawHeader: "Ref", Target: "order_id"},
	}}
	sheet := Sheet{Name: "S", Table: newTable([]string{"Product", "Amount", "Ref"},
		[]string{"Widget", "10", ""},
		[]string{"Gadget", "5", "A-2"},
		[]string{"Widget", "2.5", "A-3"},
	)}
	tpl := domain.NewTemplate("grouped")
	tpl.Provider = "acme"
	tpl.CombineOn = []string{"product"}

	res, err := e.Run([]Sheet{sheet}, mapping, tpl, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "product", "sales_amount", "provider_id"}, res.Table.Columns)
	assert.Equal(t, [][]string{
		{"A-3", "Widget", "12.5", "acme"},
		{"A-2", "Gadget", "5", "acme"},
	}, res.Table.Rows)
	assert.Equal(t, 1, res.Metrics.RowsAggregated)
}

func TestRun_SkipsAggregationWhenKeysMissing(t *testing.T) {
	e := newTestEngine(Config{})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Product", Target: "product"},
	}}
	sheet := Sheet{Name: "S", Table: newTable([]string{"Product"},
		[]string{"Widget"},
		[]string{"Widget"},
	)}
	tpl := domain.NewTemplate("nokeys")
	tpl.CombineOn = []string{"warehouse"}

	res, err := e.Run([]Sheet{sheet}, mapping, tpl, "")

	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.RowCount())
	assert.Zero(t, res.Metrics.RowsAggregated)
}

func TestRun_CleanupChain(t *testing.T) {
	e := newTestEngine(Config{})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Ref", Target: "order_id"},
		{RawHeader: "Amount", Target: "sales_amount"},
	}}
	sheet := Sheet{Name: "S", Table: newTable([]string{"Ref", "Amount"},
		[]string{"  A-1  ", "1,234"},
		[]string{"", "   "},
		[]string{"A-1", "1234"},
		[]string{"A-2", "99"},
	)}
	tpl := domain.NewTemplate("cleanup")
	tpl.Provider = "acme"
	tpl.Cleanup.StripThousands = true
	tpl.Cleanup.DropEmptyRows = true
	tpl.Cleanup.DedupeOn = []string{"order_id"}

	res, err := e.Run([]Sheet{sheet}, mapping, tpl, "")

	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"A-1", "1234", "acme"},
		{"A-2", "99", "acme"},
	}, res.Table.Rows)
	assert.Equal(t, 1, res.Metrics.EmptyRowsDropped)
	assert.Equal(t, 1, res.Metrics.DuplicatesDropped)
}

func TestRun_SparseColumnFallbackThreshold(t *testing.T) {
	e := newTestEngine(Config{SparseColumnThreshold: 0.6})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Ref", Target: "order_id"},
		{RawHeader: "Qty", Target: "quantity"},
	}}
	sheet := Sheet{Name: "S", Table: newTable([]string{"Ref", "Qty"},
		[]string{"A-1", "1"},
		[]string{"A-2", ""},
		[]string{"A-3", ""},
	)}
	tpl := domain.NewTemplate("sparse")
	tpl.Provider = "acme"

	res, err := e.Run([]Sheet{sheet}, mapping, tpl, "")

	require.NoError(t, err)
	assert.False(t, res.Table.HasColumn("quantity"))
	assert.True(t, res.Table.HasColumn("order_id"))
	assert.Equal(t, []string{"quantity"}, res.Metrics.SparseColumnsDropped)
}

func TestRun_NoSheets(t *testing.T) {
	e := newTestEngine(Config{})
	tpl := domain.NewTemplate("empty")

	_, err := e.Run(nil, &domain.ColumnMapping{}, tpl, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrEmptySource)
}

func TestRun_MappedProviderColumnSurvives(t *testing.T) {
	e := newTestEngine(Config{})
	mapping := &domain.ColumnMapping{Entries: []domain.MappingEntry{
		{RawHeader: "Ref", Target: "order_id"},
		{RawHeader: "Vendor", Target: "provider_id", Origin: domain.OriginUserOverride},
	}}
	sheet := Sheet{Name: "S", Table: newTable([]string{"Ref", "Vendor"},
		[]string{"A-1", "globex"},
	)}
	tpl := domain.NewTemplate("mappedprovider")

	res, err := e.Run([]Sheet{sheet}, mapping, tpl, "fallback.xlsx")

	require.NoError(t, err)
	assert.Equal(t, []string{"globex"}, res.Table.Column("provider_id"))
}
