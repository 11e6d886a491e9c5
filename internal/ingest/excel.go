package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"schemapipe/pkg/contracts/domain"

	apierrors "schemapipe/internal/errors"
)

// ReadExcel reads the selected worksheets of a workbook. Sheets without any
// non-empty cell are skipped; an error is returned only when nothing usable
// remains. Rows come back ragged, exactly as excelize reports them.
func (r *Reader) ReadExcel(ctx context.Context, path string, opts Options) ([]domain.RawTable, error) {
	base := filepath.Base(path)

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", base, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			r.logger.Warn("closing workbook failed",
				slog.String("file", base),
				slog.String("error", cerr.Error()))
		}
	}()

	sheets, err := selectSheets(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", base, err)
	}

	tables := make([]domain.RawTable, 0, len(sheets))
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q in %s: %w", sheet, base, err)
		}
		merged, err := readMergedRanges(f, sheet)
		if err != nil {
			return nil, fmt.Errorf("merged ranges of sheet %q in %s: %w", sheet, base, err)
		}

		table := applySkipRows(domain.RawTable{
			SourceFile: base,
			Sheet:      sheet,
			Rows:       rows,
			Merged:     merged,
		}, opts.SkipRows)

		if table.IsEmpty() {
			r.logger.Debug("skipping empty sheet",
				slog.String("file", base),
				slog.String("sheet", sheet))
			continue
		}
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("%s: %w", base, apierrors.ErrEmptySource)
	}

	r.logger.Info("workbook read",
		slog.String("file", base),
		slog.Int("sheets", len(tables)),
		slog.Int("rows", totalRows(tables)))
	return tables, nil
}

// selectSheets resolves the sheet selection against the workbook. Explicit
// names must all exist; otherwise the first sheet (or all of them when
// AllSheets is set) is used.
func selectSheets(f *excelize.File, opts Options) ([]string, error) {
	available := f.GetSheetList()
	if len(available) == 0 {
		return nil, apierrors.ErrEmptySource
	}

	if len(opts.Sheets) > 0 {
		known := make(map[string]struct{}, len(available))
		for _, name := range available {
			known[name] = struct{}{}
		}
		for _, name := range opts.Sheets {
			if _, ok := known[name]; !ok {
				return nil, fmt.Errorf("sheet %q not found (workbook has %v)", name, available)
			}
		}
		return opts.Sheets, nil
	}

	if opts.AllSheets {
		return available, nil
	}
	return available[:1], nil
}

func readMergedRanges(f *excelize.File, sheet string) ([]domain.MergedRange, error) {
	cells, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, nil
	}

	ranges := make([]domain.MergedRange, 0, len(cells))
	for _, mc := range cells {
		startCol, startRow, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			return nil, fmt.Errorf("parse merge start %q: %w", mc.GetStartAxis(), err)
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			return nil, fmt.Errorf("parse merge end %q: %w", mc.GetEndAxis(), err)
		}
		// excelize coordinates are 1-based.
		ranges = append(ranges, domain.MergedRange{
			StartRow: startRow - 1,
			StartCol: startCol - 1,
			EndRow:   endRow - 1,
			EndCol:   endCol - 1,
			Value:    mc.GetCellValue(),
		})
	}
	return ranges, nil
}

func totalRows(tables []domain.RawTable) int {
	n := 0
	for _, t := range tables {
		n += t.RowCount()
	}
	return n
}
