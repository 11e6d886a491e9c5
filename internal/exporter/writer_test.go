package exporter

import (
	"bytes"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apierrors "schemapipe/internal/errors"
	"schemapipe/pkg/contracts/domain"
)

func newTestWriter() *Writer {
	return NewWriter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleTable() *domain.TransformedTable {
	table := domain.NewTransformedTable([]string{"order_id", "product", "sales_amount"})
	table.Rows = [][]string{
		{"A-1", "Widget", "1200.50"},
		{"A-2", "Gadget", "89.99"},
	}
	return table
}

func TestWriter_WriteCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders_clean.csv")

	err := newTestWriter().Write(sampleTable(), "csv", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM), "csv output must start with a UTF-8 BOM")

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"order_id", "product", "sales_amount"}, records[0])
	assert.Equal(t, []string{"A-1", "Widget", "1200.50"}, records[1])
	assert.Equal(t, []string{"A-2", "Gadget", "89.99"}, records[2])
}

func TestWriter_WriteXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders_clean.xlsx")

	err := newTestWriter().Write(sampleTable(), "xlsx", path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"order_id", "product", "sales_amount"}, rows[0])
	assert.Equal(t, []string{"A-1", "Widget", "1200.50"}, rows[1])
	assert.Equal(t, []string{"A-2", "Gadget", "89.99"}, rows[2])
}

func TestWriter_WriteParquet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders_clean.parquet")

	err := newTestWriter().Write(sampleTable(), "parquet", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	magic := []byte("PAR1")
	assert.True(t, bytes.HasPrefix(data, magic), "parquet output must start with the PAR1 magic")
	assert.True(t, bytes.HasSuffix(data, magic), "parquet output must end with the PAR1 magic")
	assert.Greater(t, len(data), 8)
}

func TestWriter_EmptyFormatDefaultsToCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders_clean.csv")

	err := newTestWriter().Write(sampleTable(), "", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, utf8BOM))
}

func TestWriter_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders_clean.bin")

	err := newTestWriter().Write(sampleTable(), "arrow", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrUnsupportedFormat)
	assert.NoFileExists(t, path)
}

func TestWriter_CreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "2024", "orders_clean.csv")

	err := newTestWriter().Write(sampleTable(), "csv", path)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestWriter_NoStagingFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders_clean.csv")

	err := newTestWriter().Write(sampleTable(), "csv", path)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "orders_clean.csv", entries[0].Name())
}

func TestWriter_EmptyTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty_clean.csv")

	table := domain.NewTransformedTable([]string{"order_id", "product"})
	err := newTestWriter().Write(table, "csv", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1, "header row only")
	assert.Equal(t, []string{"order_id", "product"}, records[0])
}
