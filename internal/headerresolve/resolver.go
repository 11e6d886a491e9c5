package headerresolve

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/transform"
	"schemapipe/pkg/contracts/domain"
)

// Config tunes the header scan. Zero values take the pipeline defaults.
type Config struct {
	// ScanWindow bounds how many leading rows the scan inspects.
	ScanWindow int

	// StringRatio is the fraction of non-numeric cells, among a row's
	// non-empty cells, a candidate must exceed.
	StringRatio float64

	// WidthRatio is the fraction of non-empty cells, across the table
	// width, a candidate must exceed.
	WidthRatio float64
}

const (
	defaultScanWindow  = 10
	defaultStringRatio = 0.8
	defaultWidthRatio  = 0.5
)

func (c Config) withDefaults() Config {
	if c.ScanWindow <= 0 {
		c.ScanWindow = defaultScanWindow
	}
	if c.StringRatio <= 0 {
		c.StringRatio = defaultStringRatio
	}
	if c.WidthRatio <= 0 {
		c.WidthRatio = defaultWidthRatio
	}
	return c
}

// Resolver derives header specs from raw tables.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger falls back to slog.Default.
func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg.withDefaults(), logger: logger}
}

// Resolve determines the table's header. A non-nil headerRow names the
// header row explicitly and skips the scan; the row still gets merged-cell
// expansion, placeholder names and duplicate suffixes, but never a two-row
// combine. Without an explicit row the first row in the scan window that is
// mostly text and wide enough wins, and a year row paired with a month row
// is combined into one header.
func (r *Resolver) Resolve(table *domain.RawTable, headerRow *int) (domain.HeaderSpec, error) {
	if table.IsEmpty() {
		return domain.HeaderSpec{}, fmt.Errorf("%s: %w", sourceName(table), apierrors.ErrEmptySource)
	}
	width := table.Width()

	if headerRow != nil {
		idx := *headerRow
		if idx < 0 || idx >= table.RowCount() {
			return domain.HeaderSpec{}, fmt.Errorf("header row %d out of range for %s with %d rows",
				idx, sourceName(table), table.RowCount())
		}
		spec := r.singleRowSpec(table, idx, width)
		r.logger.Debug("header row set explicitly",
			slog.String("source", sourceName(table)),
			slog.Int("row", idx))
		return spec, nil
	}

	window := r.cfg.ScanWindow
	if window > table.RowCount() {
		window = table.RowCount()
	}
	for idx := 0; idx < window; idx++ {
		row := rawRow(table, idx, width)
		if !r.plausibleHeader(row, width) {
			continue
		}
		spec := r.specAt(table, idx, width)
		if !dataBelowIsTyped(table, row, spec, width) {
			r.logger.Debug("candidate rejected, rows below are not more typed",
				slog.String("source", sourceName(table)),
				slog.Int("row", idx))
			continue
		}
		r.logger.Debug("header resolved",
			slog.String("source", sourceName(table)),
			slog.Any("header_rows", spec.HeaderRows),
			slog.Int("data_start", spec.DataStart),
			slog.Int("columns", spec.Width()))
		return spec, nil
	}
	return domain.HeaderSpec{}, fmt.Errorf("%w: scanned %d rows of %s",
		apierrors.ErrNoHeaderDetected, window, sourceName(table))
}

// plausibleHeader applies the text and width thresholds to a raw row. A
// passing row is only a candidate; Resolve still confirms it against the
// rows below. Numeric cells are anything strconv can parse as a float, so
// "2020" counts against a row but "1,234" or "$5" do not.
func (r *Resolver) plausibleHeader(row []string, width int) bool {
	nonEmpty := countNonEmpty(row)
	if nonEmpty == 0 || width == 0 {
		return false
	}
	textCells := 0
	for _, cell := range row {
		trimmed := strings.TrimSpace(cell)
		if trimmed == "" {
			continue
		}
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			textCells++
		}
	}
	stringRatio := float64(textCells) / float64(nonEmpty)
	widthRatio := float64(nonEmpty) / float64(width)
	return stringRatio > r.cfg.StringRatio && widthRatio > r.cfg.WidthRatio
}

// dataBelowIsTyped confirms a candidate against the first non-empty row
// under the resolved header. A real header sits above rows that are more
// numeric/typed than itself; a wide all-text banner sits above more text
// and is skipped. A candidate with nothing below it never confirms.
func dataBelowIsTyped(table *domain.RawTable, candidate []string, spec domain.HeaderSpec, width int) bool {
	for idx := spec.DataStart; idx < table.RowCount(); idx++ {
		below := rawRow(table, idx, width)
		if countNonEmpty(below) == 0 {
			continue
		}
		return typedFraction(below) > typedFraction(candidate)
	}
	return false
}

// typedFraction is the share of a row's non-empty cells that read as a
// number or a date. This side of the comparison uses the lenient parsers,
// so "1,234" and "$5" count as typed here even though plausibleHeader
// does not hold them against a candidate.
func typedFraction(row []string) float64 {
	nonEmpty, typed := 0, 0
	for _, cell := range row {
		trimmed := strings.TrimSpace(cell)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		if _, ok := transform.ParseNumber(trimmed); ok {
			typed++
			continue
		}
		if _, ok := transform.ParseDate(trimmed); ok {
			typed++
		}
	}
	if nonEmpty == 0 {
		return 0
	}
	return float64(typed) / float64(nonEmpty)
}

// specAt builds the HeaderSpec for a confirmed header at idx, combining with
// a neighboring row when the pair reads as year over months. A year row alone
// never qualifies as a header (too numeric), so the scan lands on the month
// row and the year row is picked up from above.
func (r *Resolver) specAt(table *domain.RawTable, idx, width int) domain.HeaderSpec {
	row := rawRow(table, idx, width)
	if monthLikeRow(row) && idx > 0 && hasYearToken(rawRow(table, idx-1, width)) {
		return combineSpec(table, idx-1, idx, width)
	}
	if idx+1 < table.RowCount() {
		below := rawRow(table, idx+1, width)
		if monthLikeRow(below) && hasYearToken(row) {
			return combineSpec(table, idx, idx+1, width)
		}
	}
	return r.singleRowSpec(table, idx, width)
}

// singleRowSpec expands one header row: merged ranges fill the cells they
// span, and when the row is still sparser than the row below it the labels
// are forward-filled.
func (r *Resolver) singleRowSpec(table *domain.RawTable, idx, width int) domain.HeaderSpec {
	labels := mergedRow(table, idx, width)
	if idx+1 < table.RowCount() {
		below := rawRow(table, idx+1, width)
		if countNonEmpty(labels) < countNonEmpty(below) {
			labels = forwardFill(labels)
		}
	}
	return domain.HeaderSpec{
		HeaderRows: []int{idx},
		Labels:     finalizeLabels(labels),
		DataStart:  idx + 1,
	}
}

// combineSpec joins a year row with the month row under it. The top row is
// forward-filled so each month inherits its year, then each position joins
// as top_bottom with month names normalized.
func combineSpec(table *domain.RawTable, top, bottom, width int) domain.HeaderSpec {
	topRow := forwardFill(mergedRow(table, top, width))
	bottomRow := mergedRow(table, bottom, width)
	labels := make([]string, width)
	for i := range labels {
		labels[i] = combineLabel(topRow[i], bottomRow[i])
	}
	return domain.HeaderSpec{
		HeaderRows: []int{top, bottom},
		Labels:     finalizeLabels(labels),
		DataStart:  bottom + 1,
	}
}

func combineLabel(top, bottom string) string {
	top = strings.TrimSpace(top)
	bottom = strings.TrimSpace(bottom)
	if display, ok := monthDisplay(bottom); ok {
		bottom = display
	}
	switch {
	case bottom == "":
		return top
	case top == "":
		return bottom
	default:
		return top + "_" + bottom
	}
}

func sourceName(table *domain.RawTable) string {
	if table.Sheet != "" {
		return fmt.Sprintf("%s[%s]", table.SourceFile, table.Sheet)
	}
	if table.SourceFile != "" {
		return table.SourceFile
	}
	return "table"
}
