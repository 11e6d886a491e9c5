package transform

import (
	"strings"

	"schemapipe/pkg/contracts/domain"
)

// Trim strips leading and trailing whitespace from every cell.
func Trim(t *domain.TransformedTable) *domain.TransformedTable {
	out := t.Clone()
	for _, row := range out.Rows {
		for i, cell := range row {
			row[i] = strings.TrimSpace(cell)
		}
	}
	return out
}

// StripThousands removes group separators from numeric-looking cells. A cell
// only changes when the stripped form parses to the same value as the
// original, so a decimal comma ("12,5") survives while a grouping comma
// ("1,234") goes.
func (e *Engine) StripThousands(t *domain.TransformedTable) *domain.TransformedTable {
	out := t.Clone()
	for _, row := range out.Rows {
		for i, cell := range row {
			row[i] = e.stripSeparators(cell)
		}
	}
	return out
}

func (e *Engine) stripSeparators(cell string) string {
	stripped := cell
	for _, sep := range e.cfg.ThousandsSeparators {
		stripped = strings.ReplaceAll(stripped, string(sep), "")
	}
	if stripped == cell {
		return cell
	}
	orig, ok := ParseNumber(cell)
	if !ok {
		return cell
	}
	repl, ok := ParseNumber(stripped)
	if !ok || orig != repl {
		return cell
	}
	return stripped
}

// DropEmptyRows removes rows whose every cell is empty or whitespace.
// Columns named in ignore do not count toward emptiness, so a constant sheet
// or provider tag cannot keep an otherwise empty row alive.
func DropEmptyRows(t *domain.TransformedTable, ignore ...string) (*domain.TransformedTable, int) {
	ignoreIdx := make(map[int]bool, len(ignore))
	for _, name := range ignore {
		if idx := t.ColumnIndex(name); idx >= 0 {
			ignoreIdx[idx] = true
		}
	}

	out := domain.NewTransformedTable(t.Columns)
	dropped := 0
	for _, row := range t.Rows {
		empty := true
		for i, cell := range row {
			if ignoreIdx[i] {
				continue
			}
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if empty {
			dropped++
			continue
		}
		out.Rows = append(out.Rows, append([]string(nil), row...))
	}
	return out, dropped
}

// DropSparseColumns removes columns whose non-empty ratio falls below the
// threshold. A table without rows is never reduced, and when no column would
// survive the table comes back unchanged.
func DropSparseColumns(t *domain.TransformedTable, threshold float64) (*domain.TransformedTable, []string) {
	if t.RowCount() == 0 {
		return t.Clone(), nil
	}

	var keep []int
	var dropped []string
	for i, col := range t.Columns {
		nonEmpty := 0
		for _, row := range t.Rows {
			if strings.TrimSpace(cellAt(row, i)) != "" {
				nonEmpty++
			}
		}
		if float64(nonEmpty)/float64(t.RowCount()) >= threshold {
			keep = append(keep, i)
		} else {
			dropped = append(dropped, col)
		}
	}
	if len(dropped) == 0 || len(keep) == 0 {
		return t.Clone(), nil
	}

	columns := make([]string, len(keep))
	for j, i := range keep {
		columns[j] = t.Columns[i]
	}
	out := domain.NewTransformedTable(columns)
	for _, row := range t.Rows {
		projected := make([]string, len(keep))
		for j, i := range keep {
			projected[j] = cellAt(row, i)
		}
		out.Rows = append(out.Rows, projected)
	}
	return out, dropped
}

// Dedupe removes duplicate rows, keeping the first occurrence. Duplicates
// are judged on the key columns, or on the whole row when keys is empty.
// Unknown key columns are ignored; deduping an already-deduped table changes
// nothing.
func Dedupe(t *domain.TransformedTable, keys []string) (*domain.TransformedTable, int) {
	var keyIdx []int
	if len(keys) == 0 {
		for i := range t.Columns {
			keyIdx = append(keyIdx, i)
		}
	} else {
		for _, k := range keys {
			if idx := t.ColumnIndex(k); idx >= 0 {
				keyIdx = append(keyIdx, idx)
			}
		}
		if len(keyIdx) == 0 {
			return t.Clone(), 0
		}
	}

	seen := make(map[string]bool, len(t.Rows))
	out := domain.NewTransformedTable(t.Columns)
	dropped := 0
	for _, row := range t.Rows {
		parts := make([]string, len(keyIdx))
		for j, idx := range keyIdx {
			parts[j] = cellAt(row, idx)
		}
		key := strings.Join(parts, "\x1f")
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, append([]string(nil), row...))
	}
	return out, dropped
}
