package headerresolve

import (
	"fmt"
	"strings"

	"schemapipe/pkg/contracts/domain"
)

// rawRow returns row idx padded to width, without merged-range expansion.
// The scan heuristics work on raw rows so that a banner merged across the
// full sheet width still reads as a single-cell row.
func rawRow(table *domain.RawTable, idx, width int) []string {
	row := make([]string, width)
	if idx < 0 || idx >= table.RowCount() {
		return row
	}
	for col := range row {
		row[col] = table.Cell(idx, col)
	}
	return row
}

// mergedRow returns row idx padded to width with merged ranges applied:
// every empty cell covered by a merged range takes the range's anchor value.
func mergedRow(table *domain.RawTable, idx, width int) []string {
	row := rawRow(table, idx, width)
	for _, mr := range table.Merged {
		if idx < mr.StartRow || idx > mr.EndRow {
			continue
		}
		for col := mr.StartCol; col <= mr.EndCol && col < width; col++ {
			if col >= 0 && strings.TrimSpace(row[col]) == "" {
				row[col] = mr.Value
			}
		}
	}
	return row
}

// forwardFill copies each non-empty cell into the empty cells that follow
// it, up to the next non-empty cell. Leading empties stay empty.
func forwardFill(row []string) []string {
	filled := make([]string, len(row))
	last := ""
	for i, cell := range row {
		if strings.TrimSpace(cell) != "" {
			last = cell
		}
		filled[i] = cell
		if strings.TrimSpace(cell) == "" {
			filled[i] = last
		}
	}
	return filled
}

func countNonEmpty(row []string) int {
	n := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			n++
		}
	}
	return n
}

// finalizeLabels trims labels, names empty positions column_<n> (one-based)
// and disambiguates exact duplicates with _2, _3 suffixes. Applying it to
// its own output changes nothing.
func finalizeLabels(labels []string) []string {
	out := make([]string, len(labels))
	used := make(map[string]bool, len(labels))
	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			label = fmt.Sprintf("column_%d", i+1)
		}
		if used[label] {
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s_%d", label, n)
				if !used[candidate] {
					label = candidate
					break
				}
			}
		}
		used[label] = true
		out[i] = label
	}
	return out
}
