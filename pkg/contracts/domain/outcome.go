package domain

import (
	"time"
)

// OutcomeState represents the terminal state of a processed file.
type OutcomeState string

const (
	OutcomeArchived    OutcomeState = "archived"
	OutcomeQuarantined OutcomeState = "quarantined"
)

// PipelineMetrics summarizes one pipeline run for the audit trail.
type PipelineMetrics struct {
	RowsIn          int           `json:"rows_in"`
	RowsOut         int           `json:"rows_out"`
	SheetsRead      int           `json:"sheets_read"`
	UnmappedHeaders []string      `json:"unmapped_headers,omitempty"`
	DroppedColumns  []string      `json:"dropped_columns,omitempty"`
	ViolationCount  int           `json:"violation_count"`
	Duration        time.Duration `json:"duration_ns"`
}

// OutcomeRecord represents the terminal audit artifact for one input file.
// Created once per file, immutable after creation. Quarantined records carry
// the full violation list; archived records carry the output location.
type OutcomeRecord struct {
	ID            string          `json:"id"`
	SourceFile    string          `json:"source_file"`
	Provider      string          `json:"provider,omitempty"`
	State         OutcomeState    `json:"state"`
	OutputPath    string          `json:"output_path,omitempty"`
	ArchivedPath  string          `json:"archived_path,omitempty"`
	ErrorLogPath  string          `json:"error_log_path,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Violations    []Violation     `json:"violations,omitempty"`
	Metrics       PipelineMetrics `json:"metrics"`
	Profile       *TableProfile   `json:"profile,omitempty"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// Archived reports whether the file reached the output store.
func (r *OutcomeRecord) Archived() bool {
	return r.State == OutcomeArchived
}
