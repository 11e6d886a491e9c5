package domain

import (
	"time"
)

// TableProfile represents a per-column quality profile of a transformed
// table, attached to outcome records and returned by the diagnostics API.
type TableProfile struct {
	RowCount   int             `json:"row_count"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
	Columns    []ColumnProfile `json:"columns"`
}

// ColumnProfile represents quality measures for a single column. The numeric
// summary fields are set only when the column parses as numeric.
type ColumnProfile struct {
	Name         string   `json:"name"`
	Completeness float64  `json:"completeness"`
	Uniqueness   float64  `json:"uniqueness"`
	NullCount    int      `json:"null_count"`
	UniqueCount  int      `json:"unique_count"`
	NumericRatio float64  `json:"numeric_ratio"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Mean         *float64 `json:"mean,omitempty"`
	Median       *float64 `json:"median,omitempty"`
	StdDev       *float64 `json:"std_dev,omitempty"`

	// FrequentValues holds the most common values and their counts, capped
	// by the profiler.
	FrequentValues map[string]int `json:"frequent_values,omitempty"`
}
