package transform

import (
	"fmt"
	"log/slog"
	"sort"

	apierrors "schemapipe/internal/errors"
	"schemapipe/pkg/contracts/domain"
)

// Derived columns added by the engine.
const (
	// SourceSheetColumn records each row's sheet of origin when sheets
	// are combined.
	SourceSheetColumn = "source_sheet"
	// ProviderColumn tags every row with the provider identity.
	ProviderColumn = "provider_id"
)

// defaultThousandsSeparators are the group separator characters stripped by
// the numeric cleanup step when none are configured.
const defaultThousandsSeparators = ", "

// Config holds the engine's tunable cleanup settings.
type Config struct {
	// SparseColumnThreshold is the process-wide fallback non-empty ratio
	// below which a column is dropped, used when a template does not set
	// its own. Zero leaves the step off.
	SparseColumnThreshold float64

	// ThousandsSeparators lists the characters treated as group separators
	// by the strip-thousands step.
	ThousandsSeparators string
}

func (c Config) withDefaults() Config {
	if c.ThousandsSeparators == "" {
		c.ThousandsSeparators = defaultThousandsSeparators
	}
	return c
}

// Engine applies a confirmed mapping plus a template's reshape and cleanup
// configuration to header-stripped tables. An Engine is immutable after
// construction and safe for concurrent use.
type Engine struct {
	contract *domain.Contract
	cfg      Config
	logger   *slog.Logger
}

// NewEngine builds an engine against the canonical contract. The contract
// drives projection order and numeric-column decisions during aggregation.
func NewEngine(contract *domain.Contract, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		contract: contract,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Sheet pairs a per-sheet table with its sheet name for combining.
type Sheet struct {
	Name  string
	Table *domain.TransformedTable
}

// Result carries the transformed table and what the run did to get there.
type Result struct {
	Table   *domain.TransformedTable
	Metrics Metrics
}

// Metrics counts the work of one transform run.
type Metrics struct {
	RowsIn               int      `json:"rows_in"`
	RowsOut              int      `json:"rows_out"`
	SheetsCombined       int      `json:"sheets_combined"`
	DroppedColumns       []string `json:"dropped_columns,omitempty"`
	StackedColumns       int      `json:"stacked_columns,omitempty"`
	EmptyRowsDropped     int      `json:"empty_rows_dropped,omitempty"`
	SparseColumnsDropped []string `json:"sparse_columns_dropped,omitempty"`
	RowsAggregated       int      `json:"rows_aggregated,omitempty"`
	DuplicatesDropped    int      `json:"duplicates_dropped,omitempty"`
}

// Frame cuts the data region out of a raw table using its resolved header:
// the labels become columns and every row from DataStart on becomes data,
// padded or truncated to the header width.
func Frame(raw *domain.RawTable, spec domain.HeaderSpec) *domain.TransformedTable {
	t := domain.NewTransformedTable(spec.Labels)
	width := len(spec.Labels)
	for i := spec.DataStart; i < raw.RowCount(); i++ {
		row := make([]string, width)
		for c := 0; c < width; c++ {
			row[c] = raw.Cell(i, c)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ApplyMapping renames mapped columns to their canonical targets. On the
// plain path unmapped columns are dropped and reported, and mapped columns
// come out in contract order so every sheet projects to the same shape. With
// keepUnmapped set, the unpivot path, every column survives in place since
// the unmapped ones are the value columns about to be stacked.
func (e *Engine) ApplyMapping(t *domain.TransformedTable, mapping *domain.ColumnMapping, keepUnmapped bool) (*domain.TransformedTable, []string) {
	if keepUnmapped {
		out := t.Clone()
		for i, col := range out.Columns {
			if target := mapping.TargetOf(col); target != "" {
				out.Columns[i] = target
			}
		}
		return out, nil
	}

	srcIdx := make(map[string]int)
	var dropped []string
	for i, col := range t.Columns {
		target := mapping.TargetOf(col)
		if target == "" {
			dropped = append(dropped, col)
			continue
		}
		if _, ok := srcIdx[target]; !ok {
			srcIdx[target] = i
		}
	}

	var columns []string
	seen := make(map[string]bool, len(srcIdx))
	if e.contract != nil {
		for _, name := range e.contract.FieldNames() {
			if _, ok := srcIdx[name]; ok {
				columns = append(columns, name)
				seen[name] = true
			}
		}
	}
	for _, col := range t.Columns {
		target := mapping.TargetOf(col)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		columns = append(columns, target)
	}

	out := domain.NewTransformedTable(columns)
	for _, row := range t.Rows {
		projected := make([]string, len(columns))
		for j, name := range columns {
			projected[j] = cellAt(row, srcIdx[name])
		}
		out.Rows = append(out.Rows, projected)
	}
	return out, dropped
}

// Combine concatenates per-sheet tables that already went through the same
// mapping. A source_sheet column is appended before concatenation so every
// row keeps its origin. The column sets must match exactly; the first
// mismatching sheet fails the whole combine rather than padding with empties.
func (e *Engine) Combine(sheets []Sheet) (*domain.TransformedTable, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets to combine", apierrors.ErrEmptySource)
	}

	columns := append([]string(nil), sheets[0].Table.Columns...)
	out := domain.NewTransformedTable(append(append([]string(nil), columns...), SourceSheetColumn))
	for _, s := range sheets {
		if !sameColumnSet(columns, s.Table.Columns) {
			return nil, fmt.Errorf("%w: sheet %q resolved to columns %v, want %v",
				apierrors.ErrSheetSchemaMismatch, s.Name, s.Table.Columns, columns)
		}
		idx := make([]int, len(columns))
		for j, name := range columns {
			idx[j] = s.Table.ColumnIndex(name)
		}
		for _, row := range s.Table.Rows {
			combined := make([]string, len(columns)+1)
			for j, src := range idx {
				combined[j] = cellAt(row, src)
			}
			combined[len(columns)] = s.Name
			out.Rows = append(out.Rows, combined)
		}
	}
	return out, nil
}

// Run executes the full reshape and cleanup chain over the mapped sheets of
// one source. Sheets are mapped individually, combined when there is more
// than one, then unpivoted, provider-tagged, cleaned, aggregated and deduped
// per the template. sourceFile is only the provider tag fallback; the engine
// never touches the filesystem.
func (e *Engine) Run(sheets []Sheet, mapping *domain.ColumnMapping, tpl *domain.Template, sourceFile string) (*Result, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: nothing to transform", apierrors.ErrEmptySource)
	}

	keepUnmapped := tpl.Unpivot != nil
	metrics := Metrics{SheetsCombined: len(sheets)}

	mapped := make([]Sheet, 0, len(sheets))
	droppedSeen := make(map[string]bool)
	for _, s := range sheets {
		mt, dropped := e.ApplyMapping(s.Table, mapping, keepUnmapped)
		metrics.RowsIn += mt.RowCount()
		for _, col := range dropped {
			if !droppedSeen[col] {
				droppedSeen[col] = true
				metrics.DroppedColumns = append(metrics.DroppedColumns, col)
			}
		}
		mapped = append(mapped, Sheet{Name: s.Name, Table: mt})
	}

	var table *domain.TransformedTable
	if len(mapped) == 1 {
		table = mapped[0].Table
	} else {
		combined, err := e.Combine(mapped)
		if err != nil {
			return nil, err
		}
		table = combined
	}

	if tpl.Unpivot != nil {
		ids := e.unpivotIDs(table, mapping, tpl.Unpivot)
		if len(ids) == 0 {
			e.logger.Warn("unpivot requested but no identifier columns found",
				slog.String("source_file", sourceFile))
		} else {
			metrics.StackedColumns = len(table.Columns) - len(ids)
			table = Unpivot(table, ids, tpl.Unpivot.VarColumn(), tpl.Unpivot.ValueColumn())
		}
	}

	table = TagProvider(table, tpl.Provider, sourceFile)

	if tpl.Cleanup.TrimStrings {
		table = Trim(table)
	}
	if tpl.Cleanup.StripThousands {
		table = e.StripThousands(table)
	}
	if tpl.Cleanup.DropEmptyRows {
		var n int
		table, n = DropEmptyRows(table, SourceSheetColumn, ProviderColumn)
		metrics.EmptyRowsDropped = n
	}
	threshold := tpl.Cleanup.DropNullColumnsThreshold
	if threshold == 0 {
		threshold = e.cfg.SparseColumnThreshold
	}
	if threshold > 0 {
		var sparse []string
		table, sparse = DropSparseColumns(table, threshold)
		metrics.SparseColumnsDropped = sparse
	}

	if len(tpl.CombineOn) > 0 {
		keys := e.aggregateKeys(table, tpl)
		if len(keys) == 0 {
			e.logger.Warn("aggregation keys not found in columns, skipping",
				slog.Any("combine_on", tpl.CombineOn))
		} else {
			before := table.RowCount()
			table = e.Aggregate(table, keys, tpl.Aggregator)
			metrics.RowsAggregated = before - table.RowCount()
		}
	}

	if len(tpl.Cleanup.DedupeOn) > 0 {
		keys := presentColumns(table, tpl.Cleanup.DedupeOn)
		if len(keys) == 0 {
			e.logger.Warn("dedupe keys not found in columns, skipping",
				slog.Any("dedupe_on", tpl.Cleanup.DedupeOn))
		} else {
			var n int
			table, n = Dedupe(table, keys)
			metrics.DuplicatesDropped = n
		}
	}

	metrics.RowsOut = table.RowCount()
	e.logger.Debug("transform complete",
		slog.String("source_file", sourceFile),
		slog.Int("rows_in", metrics.RowsIn),
		slog.Int("rows_out", metrics.RowsOut),
		slog.Int("sheets", metrics.SheetsCombined),
		slog.Int("columns", len(table.Columns)))
	return &Result{Table: table, Metrics: metrics}, nil
}

// unpivotIDs resolves the identifier columns for an unpivot: the configured
// ones when set, otherwise every mapped canonical column present. The
// source_sheet column always identifies rows rather than carrying values.
func (e *Engine) unpivotIDs(t *domain.TransformedTable, mapping *domain.ColumnMapping, spec *domain.UnpivotSpec) []string {
	var ids []string
	if len(spec.IDColumns) > 0 {
		ids = presentColumns(t, spec.IDColumns)
	} else {
		targets := make(map[string]bool)
		for _, entry := range mapping.Entries {
			if entry.Mapped() {
				targets[entry.Target] = true
			}
		}
		for _, col := range t.Columns {
			if targets[col] {
				ids = append(ids, col)
			}
		}
	}
	if len(ids) > 0 && t.HasColumn(SourceSheetColumn) && !containsString(ids, SourceSheetColumn) {
		ids = append(ids, SourceSheetColumn)
	}
	return ids
}

// aggregateKeys builds the group key set: the configured combine keys that
// exist, plus the unpivot category column and the provider tag.
func (e *Engine) aggregateKeys(t *domain.TransformedTable, tpl *domain.Template) []string {
	keys := presentColumns(t, tpl.CombineOn)
	if len(keys) == 0 {
		return nil
	}
	if tpl.Unpivot != nil {
		if v := tpl.Unpivot.VarColumn(); t.HasColumn(v) && !containsString(keys, v) {
			keys = append(keys, v)
		}
	}
	if t.HasColumn(ProviderColumn) && !containsString(keys, ProviderColumn) {
		keys = append(keys, ProviderColumn)
	}
	return keys
}

func presentColumns(t *domain.TransformedTable, names []string) []string {
	var present []string
	for _, name := range names {
		if t.HasColumn(name) {
			present = append(present, name)
		}
	}
	return present
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sameColumnSet(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	a := append([]string(nil), want...)
	b := append([]string(nil), got...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
