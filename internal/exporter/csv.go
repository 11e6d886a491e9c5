package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"schemapipe/pkg/contracts/domain"
)

// utf8BOM prefixes CSV outputs so Excel recognizes them as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// encodeCSV renders the table as BOM-prefixed UTF-8 CSV, header row first.
func encodeCSV(table *domain.TransformedTable) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Write(utf8BOM)

	cw := csv.NewWriter(buf)
	if err := cw.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range table.Rows {
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StreamWriter writes CSV rows incrementally, for merged outputs too large
// to assemble in memory.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewStreamWriter creates the file, writes the BOM and the header row, and
// returns a writer ready for records.
func NewStreamWriter(path string, headers []string) (*StreamWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	if _, err := file.Write(utf8BOM); err != nil {
		file.Close()
		return nil, fmt.Errorf("write byte order mark: %w", err)
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	return &StreamWriter{file: file, writer: writer}, nil
}

// WriteRecord writes a single row.
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes and closes the underlying file.
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
