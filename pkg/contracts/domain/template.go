package domain

import (
	"time"
)

// TemplateVersion is the current template schema version. Older persisted
// templates are upgraded on load by the template store.
const TemplateVersion = 3

// Default reshape names used when an unpivot spec leaves them unset.
const (
	DefaultVarName   = "report_date"
	DefaultValueName = "sales_amount"
)

// Template represents a saved, replayable column mapping plus reshape
// configuration for a recurring provider layout. Templates are copied on
// read; a loaded template is never shared mutably with the store.
type Template struct {
	Key        string `json:"key" validate:"required"`
	Provider   string `json:"provider,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
	SourceType string `json:"source_type" validate:"omitempty,oneof=excel csv"`

	// Sheet selection. Sheet names a single sheet; Sheets with
	// CombineSheets=true concatenates several through the same mapping.
	Sheet         string   `json:"sheet,omitempty"`
	Sheets        []string `json:"sheets,omitempty"`
	CombineSheets bool     `json:"combine_sheets,omitempty"`

	// Read options. HeaderRow, when set, bypasses header detection.
	HeaderRow *int   `json:"header_row,omitempty"`
	SkipRows  int    `json:"skip_rows,omitempty" validate:"min=0"`
	Delimiter string `json:"delimiter,omitempty"`
	Encoding  string `json:"encoding,omitempty"`

	// Mapping and reshape configuration.
	Mapping    ColumnMapping `json:"mapping"`
	Unpivot    *UnpivotSpec  `json:"unpivot,omitempty"`
	CombineOn  []string      `json:"combine_on,omitempty"`
	Aggregator string        `json:"aggregator,omitempty" validate:"omitempty,oneof=sum first max min count"`
	Cleanup    CleanupConfig `json:"cleanup"`

	// Contract overrides layered on top of the process-wide contract.
	RequiredFields []string          `json:"required_fields,omitempty"`
	FieldTypes     map[string]string `json:"field_types,omitempty"`

	Output    OutputOptions `json:"output"`
	Version   int           `json:"template_version"`
	UpdatedAt time.Time     `json:"updated_at,omitempty"`
}

// UnpivotSpec configures wide-to-long reshaping: identifier columns are kept
// per row and all remaining mapped value columns are stacked into
// (VarName, ValueName) pairs.
type UnpivotSpec struct {
	IDColumns []string `json:"id_columns"`
	VarName   string   `json:"var_name,omitempty"`
	ValueName string   `json:"value_name,omitempty"`
}

// CleanupConfig toggles the cleanup operations. They always run in a fixed
// order: trim, strip thousands, drop empty rows, drop sparse columns, dedupe.
type CleanupConfig struct {
	TrimStrings              bool     `json:"trim_strings"`
	StripThousands           bool     `json:"strip_thousands"`
	DropEmptyRows            bool     `json:"drop_empty_rows"`
	DropNullColumnsThreshold float64  `json:"drop_null_columns_threshold,omitempty" validate:"min=0,max=1"`
	DedupeOn                 []string `json:"dedupe_on,omitempty"`
}

// OutputOptions selects the output format for archived tables.
type OutputOptions struct {
	Format string `json:"format,omitempty" validate:"omitempty,oneof=csv xlsx parquet"`
}

// NewTemplate returns a template with the conventional defaults.
func NewTemplate(key string) *Template {
	return &Template{
		Key:        key,
		SourceType: "excel",
		Delimiter:  ",",
		Encoding:   "utf-8",
		Cleanup: CleanupConfig{
			TrimStrings: true,
		},
		Output:  OutputOptions{Format: "csv"},
		Version: TemplateVersion,
	}
}

// VarColumn returns the unpivot category column name, defaulted.
func (s *UnpivotSpec) VarColumn() string {
	if s == nil || s.VarName == "" {
		return DefaultVarName
	}
	return s.VarName
}

// ValueColumn returns the unpivot value column name, defaulted.
func (s *UnpivotSpec) ValueColumn() string {
	if s == nil || s.ValueName == "" {
		return DefaultValueName
	}
	return s.ValueName
}

// SelectedSheets returns the sheets this template reads, single-sheet
// selection first. Empty means the reader's default (first) sheet.
func (t *Template) SelectedSheets() []string {
	if t.CombineSheets && len(t.Sheets) > 0 {
		return append([]string(nil), t.Sheets...)
	}
	if t.Sheet != "" {
		return []string{t.Sheet}
	}
	return nil
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	clone := *t
	clone.Sheets = append([]string(nil), t.Sheets...)
	clone.CombineOn = append([]string(nil), t.CombineOn...)
	clone.RequiredFields = append([]string(nil), t.RequiredFields...)
	clone.Cleanup.DedupeOn = append([]string(nil), t.Cleanup.DedupeOn...)
	clone.Mapping = *t.Mapping.Clone()
	if t.HeaderRow != nil {
		hr := *t.HeaderRow
		clone.HeaderRow = &hr
	}
	if t.Unpivot != nil {
		u := *t.Unpivot
		u.IDColumns = append([]string(nil), t.Unpivot.IDColumns...)
		clone.Unpivot = &u
	}
	if t.FieldTypes != nil {
		clone.FieldTypes = make(map[string]string, len(t.FieldTypes))
		for k, v := range t.FieldTypes {
			clone.FieldTypes[k] = v
		}
	}
	return &clone
}

// TemplateInfo represents template metadata returned by store listings.
type TemplateInfo struct {
	Key       string    `json:"key"`
	Provider  string    `json:"provider,omitempty"`
	Version   int       `json:"template_version"`
	UpdatedAt time.Time `json:"updated_at"`
}
