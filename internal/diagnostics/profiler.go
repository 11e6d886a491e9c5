package diagnostics

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"schemapipe/internal/transform"
	"schemapipe/pkg/contracts/domain"
)

// maxFrequentValues caps the frequent-value list per column.
const maxFrequentValues = 5

// Profiler computes per-column quality profiles.
type Profiler struct {
	logger *slog.Logger
}

// NewProfiler creates a profiler.
func NewProfiler(logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiler{logger: logger}
}

// Profile analyzes every column of the table. The numeric summary is
// attached only when all non-empty cells of a column parse as numbers, so a
// lone stray "42" in a text column cannot masquerade as a measurement.
func (p *Profiler) Profile(table *domain.TransformedTable) *domain.TableProfile {
	profile := &domain.TableProfile{
		RowCount:   table.RowCount(),
		AnalyzedAt: time.Now().UTC(),
		Columns:    make([]domain.ColumnProfile, 0, len(table.Columns)),
	}

	for idx, name := range table.Columns {
		profile.Columns = append(profile.Columns, p.profileColumn(table, idx, name))
	}

	p.logger.Debug("table profiled",
		slog.Int("rows", profile.RowCount),
		slog.Int("columns", len(profile.Columns)))
	return profile
}

func (p *Profiler) profileColumn(table *domain.TransformedTable, idx int, name string) domain.ColumnProfile {
	col := domain.ColumnProfile{Name: name}

	counts := make(map[string]int)
	var numbers []float64
	nonEmpty := 0
	for rowIdx := range table.Rows {
		cell := strings.TrimSpace(table.Cell(rowIdx, idx))
		if cell == "" {
			col.NullCount++
			continue
		}
		nonEmpty++
		counts[cell]++
		if v, ok := transform.ParseNumber(cell); ok {
			numbers = append(numbers, v)
		}
	}

	col.UniqueCount = len(counts)
	if rows := table.RowCount(); rows > 0 {
		col.Completeness = float64(nonEmpty) / float64(rows)
	}
	if nonEmpty > 0 {
		col.Uniqueness = float64(col.UniqueCount) / float64(nonEmpty)
		col.NumericRatio = float64(len(numbers)) / float64(nonEmpty)
		col.FrequentValues = topValues(counts, maxFrequentValues)
	}

	if len(numbers) > 0 && len(numbers) == nonEmpty {
		min, _ := stats.Min(numbers)
		max, _ := stats.Max(numbers)
		mean, _ := stats.Mean(numbers)
		median, _ := stats.Median(numbers)
		stdDev, _ := stats.StandardDeviation(numbers)
		col.Min = &min
		col.Max = &max
		col.Mean = &mean
		col.Median = &median
		col.StdDev = &stdDev
	}

	return col
}

// topValues keeps the n most common values, ties broken by value so the
// result is stable across runs.
func topValues(counts map[string]int, n int) map[string]int {
	if len(counts) <= n {
		top := make(map[string]int, len(counts))
		for value, count := range counts {
			top[value] = count
		}
		return top
	}

	type pair struct {
		value string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for value, count := range counts {
		pairs = append(pairs, pair{value, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].value < pairs[j].value
	})

	top := make(map[string]int, n)
	for _, p := range pairs[:n] {
		top[p.value] = p.count
	}
	return top
}
