package transform

import (
	"strconv"
	"strings"

	"schemapipe/pkg/contracts/domain"
)

// Aggregator names accepted by templates.
const (
	AggSum   = "sum"
	AggFirst = "first"
	AggMax   = "max"
	AggMin   = "min"
	AggCount = "count"
)

// Unpivot reshapes wide value columns into long rows. Identifier columns are
// kept on every output row; each remaining column contributes one row per
// input row carrying its label and cell value. Value columns stack block by
// block in column order, the way a dataframe melt lays them out, so row
// count multiplies by the number of stacked columns.
func Unpivot(t *domain.TransformedTable, idColumns []string, varName, valueName string) *domain.TransformedTable {
	idSet := make(map[string]bool, len(idColumns))
	for _, c := range idColumns {
		idSet[c] = true
	}

	var idIdx, valueIdx []int
	var ids []string
	for i, col := range t.Columns {
		if idSet[col] {
			idIdx = append(idIdx, i)
			ids = append(ids, col)
		} else {
			valueIdx = append(valueIdx, i)
		}
	}

	out := domain.NewTransformedTable(append(append([]string(nil), ids...), varName, valueName))
	for _, vIdx := range valueIdx {
		label := t.Columns[vIdx]
		for _, row := range t.Rows {
			stacked := make([]string, 0, len(ids)+2)
			for _, idx := range idIdx {
				stacked = append(stacked, cellAt(row, idx))
			}
			stacked = append(stacked, label, cellAt(row, vIdx))
			out.Rows = append(out.Rows, stacked)
		}
	}
	return out
}

// TagProvider stamps the provider identity column. A configured provider
// name overwrites whatever the mapping produced; otherwise a mapped provider
// column is left alone and only a missing one is filled from the source file
// name.
func TagProvider(t *domain.TransformedTable, provider, fallback string) *domain.TransformedTable {
	out := t.Clone()
	idx := out.ColumnIndex(ProviderColumn)
	if provider == "" && idx >= 0 {
		return out
	}

	value := provider
	if value == "" {
		value = fallback
	}
	if idx < 0 {
		out.Columns = append(out.Columns, ProviderColumn)
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], value)
		}
		return out
	}
	for i := range out.Rows {
		if idx < len(out.Rows[i]) {
			out.Rows[i][idx] = value
		}
	}
	return out
}

// Aggregate merges rows sharing the same key values. Numeric columns reduce
// with the configured aggregator (sum when empty), other columns take the
// first non-empty value in row order. Groups come out in first-seen order,
// so the result is deterministic for a given input order.
func (e *Engine) Aggregate(t *domain.TransformedTable, keys []string, aggregator string) *domain.TransformedTable {
	keySet := make(map[string]bool, len(keys))
	var keyIdx []int
	for _, k := range keys {
		if idx := t.ColumnIndex(k); idx >= 0 && !keySet[k] {
			keySet[k] = true
			keyIdx = append(keyIdx, idx)
		}
	}
	if len(keyIdx) == 0 {
		return t.Clone()
	}

	numeric := make([]bool, len(t.Columns))
	for i, col := range t.Columns {
		if !keySet[col] {
			numeric[i] = e.numericColumn(t, i, col)
		}
	}

	var order []string
	groups := make(map[string][][]string)
	for _, row := range t.Rows {
		parts := make([]string, len(keyIdx))
		for j, idx := range keyIdx {
			parts[j] = cellAt(row, idx)
		}
		key := strings.Join(parts, "\x1f")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	out := domain.NewTransformedTable(t.Columns)
	for _, key := range order {
		rows := groups[key]
		merged := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			switch {
			case keySet[col]:
				merged[i] = cellAt(rows[0], i)
			case numeric[i]:
				merged[i] = reduceNumeric(rows, i, aggregator)
			default:
				merged[i] = firstNonEmpty(rows, i)
			}
		}
		out.Rows = append(out.Rows, merged)
	}
	return out
}

// numericColumn reports whether a column aggregates numerically: its
// contract type says number, or every non-empty cell parses as one.
func (e *Engine) numericColumn(t *domain.TransformedTable, idx int, name string) bool {
	if e.contract != nil {
		if field, ok := e.contract.Field(name); ok {
			return field.Type == domain.FieldTypeNumber
		}
	}
	found := false
	for _, row := range t.Rows {
		cell := strings.TrimSpace(cellAt(row, idx))
		if cell == "" {
			continue
		}
		if _, ok := ParseNumber(cell); !ok {
			return false
		}
		found = true
	}
	return found
}

func reduceNumeric(rows [][]string, idx int, aggregator string) string {
	var (
		acc   float64
		first string
		count int
	)
	for _, row := range rows {
		cell := strings.TrimSpace(cellAt(row, idx))
		if cell == "" {
			continue
		}
		v, ok := ParseNumber(cell)
		if !ok {
			continue
		}
		if count == 0 {
			acc = v
			first = cell
		} else {
			switch aggregator {
			case AggMax:
				if v > acc {
					acc = v
				}
			case AggMin:
				if v < acc {
					acc = v
				}
			case AggFirst:
			default:
				acc += v
			}
		}
		count++
	}

	switch {
	case aggregator == AggCount:
		return strconv.Itoa(count)
	case count == 0:
		// All cells empty: the group has no value, not a zero.
		return ""
	case aggregator == AggFirst:
		return first
	default:
		return FormatNumber(acc)
	}
}

func firstNonEmpty(rows [][]string, idx int) string {
	for _, row := range rows {
		if strings.TrimSpace(cellAt(row, idx)) != "" {
			return cellAt(row, idx)
		}
	}
	return ""
}
