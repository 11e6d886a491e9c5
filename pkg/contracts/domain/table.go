package domain

// RawTable represents one sheet (or CSV file) exactly as read from the
// source, before header resolution. Cells are untyped strings. A RawTable is
// immutable once returned by a reader; every derivation produces new values.
type RawTable struct {
	SourceFile string        `json:"source_file"`
	Sheet      string        `json:"sheet,omitempty"`
	Rows       [][]string    `json:"rows"`
	Merged     []MergedRange `json:"merged,omitempty"`
}

// MergedRange describes a merged cell region in the source sheet. Coordinates
// are zero-based and inclusive. Value is the anchor cell's content.
type MergedRange struct {
	StartRow int    `json:"start_row"`
	StartCol int    `json:"start_col"`
	EndRow   int    `json:"end_row"`
	EndCol   int    `json:"end_col"`
	Value    string `json:"value"`
}

// RowCount returns the number of rows in the table.
func (t *RawTable) RowCount() int {
	return len(t.Rows)
}

// Width returns the widest row length. Excel readers commonly return ragged
// rows, so individual rows may be shorter.
func (t *RawTable) Width() int {
	w := 0
	for _, row := range t.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Cell returns the cell at (row, col), or "" when the coordinates fall
// outside the table or beyond a ragged row.
func (t *RawTable) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	if col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// IsEmpty reports whether the table contains no non-empty cells.
func (t *RawTable) IsEmpty() bool {
	for _, row := range t.Rows {
		for _, cell := range row {
			if cell != "" {
				return false
			}
		}
	}
	return true
}

// TransformedTable represents a canonical-column table after mapping,
// reshaping and cleanup. Columns are ordered; rows are rectangular with one
// cell per column. Transform operations never mutate a table in place.
type TransformedTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTransformedTable builds an empty table with the given column set.
func NewTransformedTable(columns []string) *TransformedTable {
	return &TransformedTable{
		Columns: append([]string(nil), columns...),
		Rows:    [][]string{},
	}
}

// RowCount returns the number of data rows.
func (t *TransformedTable) RowCount() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *TransformedTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *TransformedTable) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns a copy of the named column's values, or nil when the column
// does not exist.
func (t *TransformedTable) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values
}

// Cell returns the cell at (row, col), or "" when out of range.
func (t *TransformedTable) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	if col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Clone returns a deep copy of the table.
func (t *TransformedTable) Clone() *TransformedTable {
	clone := &TransformedTable{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		clone.Rows[i] = append([]string(nil), row...)
	}
	return clone
}
