package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apierrors "schemapipe/internal/errors"
	"schemapipe/pkg/contracts/domain"
)

// Output formats accepted by the writer, mirroring template output options.
const (
	FormatCSV     = "csv"
	FormatXLSX    = "xlsx"
	FormatParquet = "parquet"
)

// Writer renders transformed tables to disk.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a table writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write renders the table to path in the given format, csv when empty.
// The file appears atomically: content is staged beside path and renamed
// into place, so readers never observe a half-written output.
func (w *Writer) Write(table *domain.TransformedTable, format, path string) error {
	var (
		data []byte
		err  error
	)
	switch NormalizeFormat(format) {
	case FormatCSV:
		data, err = encodeCSV(table)
	case FormatXLSX:
		data, err = encodeXLSX(table)
	case FormatParquet:
		data, err = encodeParquet(table)
	default:
		return fmt.Errorf("%w: output format %q", apierrors.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("encode %s output: %w", NormalizeFormat(format), err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}

	w.logger.Info("output written",
		slog.String("path", path),
		slog.String("format", NormalizeFormat(format)),
		slog.Int("rows", table.RowCount()),
		slog.Int("columns", len(table.Columns)))
	return nil
}

// writeFileAtomic stages data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".out-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
