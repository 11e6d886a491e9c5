package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"schemapipe/pkg/contracts/domain"

	apierrors "schemapipe/internal/errors"
)

// Format identifies the reader family used for a source file.
type Format string

const (
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

// Options controls how a source file is read. The zero value reads the
// workbook's first sheet (or the whole CSV) as UTF-8 with a comma delimiter.
type Options struct {
	// Sheets selects specific worksheets by name. Empty means the first
	// sheet unless AllSheets is set. Ignored for delimited files.
	Sheets []string

	// AllSheets reads every worksheet in the workbook, used by the
	// combine-sheets path and by ingest previews.
	AllSheets bool

	// Delimiter is the field separator for delimited files. Empty means
	// comma, with tab inferred for .tsv files.
	Delimiter string

	// Encoding names the character encoding of delimited files. Empty
	// means UTF-8; a leading byte order mark is always stripped.
	Encoding string

	// SkipRows drops this many leading rows from every table before it is
	// returned, shifting merged ranges to match.
	SkipRows int
}

// OptionsFromTemplate derives read options from a saved template.
func OptionsFromTemplate(t *domain.Template) Options {
	if t == nil {
		return Options{}
	}
	return Options{
		Sheets:    t.SelectedSheets(),
		AllSheets: t.CombineSheets && len(t.Sheets) == 0,
		Delimiter: t.Delimiter,
		Encoding:  t.Encoding,
		SkipRows:  t.SkipRows,
	}
}

// DetectFormat classifies a source file by extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls":
		return FormatExcel, nil
	case ".csv", ".tsv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", apierrors.ErrUnsupportedFormat, filepath.Ext(path))
}

// Reader loads source files into raw tables.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a reader. A nil logger falls back to slog.Default.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger}
}

// ReadFile reads a source file, dispatching on its extension. Excel sources
// may yield several tables (one per selected sheet); delimited sources always
// yield exactly one.
func (r *Reader) ReadFile(ctx context.Context, path string, opts Options) ([]domain.RawTable, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatExcel:
		return r.ReadExcel(ctx, path, opts)
	default:
		if opts.Delimiter == "" && strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = "\t"
		}
		table, err := r.ReadCSV(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return []domain.RawTable{table}, nil
	}
}

// applySkipRows drops n leading rows and shifts merged ranges accordingly.
// Ranges that end inside the dropped region disappear; ranges that straddle
// the cut are clamped to start at row zero.
func applySkipRows(t domain.RawTable, n int) domain.RawTable {
	if n <= 0 {
		return t
	}
	if n >= len(t.Rows) {
		t.Rows = nil
		t.Merged = nil
		return t
	}
	t.Rows = t.Rows[n:]

	var merged []domain.MergedRange
	for _, m := range t.Merged {
		if m.EndRow < n {
			continue
		}
		m.StartRow -= n
		if m.StartRow < 0 {
			m.StartRow = 0
		}
		m.EndRow -= n
		merged = append(merged, m)
	}
	t.Merged = merged
	return t
}
