package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"schemapipe/pkg/contracts/domain"

	apierrors "schemapipe/internal/errors"
)

// ReadCSV reads a delimited text file into a single raw table. Records may
// have varying field counts; quoting follows the lazy rules so that the
// half-broken exports providers actually send still parse.
func (r *Reader) ReadCSV(ctx context.Context, path string, opts Options) (domain.RawTable, error) {
	base := filepath.Base(path)

	decoder, err := decoderFor(opts.Encoding)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("%s: %w", base, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("open %s: %w", base, err)
	}
	defer file.Close()

	parser := csv.NewReader(transform.NewReader(bufio.NewReader(file), decoder))
	parser.Comma = delimiterRune(opts.Delimiter)
	parser.FieldsPerRecord = -1
	parser.LazyQuotes = true

	var rows [][]string
	for {
		if len(rows)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.RawTable{}, err
			}
		}
		record, err := parser.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("parse %s: %w", base, err)
		}
		rows = append(rows, record)
	}

	table := applySkipRows(domain.RawTable{SourceFile: base, Rows: rows}, opts.SkipRows)
	if table.IsEmpty() {
		return domain.RawTable{}, fmt.Errorf("%s: %w", base, apierrors.ErrEmptySource)
	}

	r.logger.Info("delimited file read",
		slog.String("file", base),
		slog.Int("rows", table.RowCount()),
		slog.Int("width", table.Width()))
	return table, nil
}

// delimiterRune returns the effective field separator. Only the first rune of
// a configured delimiter matters, matching how templates store it.
func delimiterRune(delimiter string) rune {
	for _, r := range delimiter {
		return r
	}
	return ','
}

// decoderFor maps an encoding name to a decoder. UTF-8 input always has a
// leading byte order mark stripped.
func decoderFor(name string) (*encoding.Decoder, error) {
	switch normalizeEncoding(name) {
	case "", "utf8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case "latin1", "iso88591":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case "utf16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder(), nil
	case "utf16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder(), nil
	}
	return nil, apierrors.NewConfigError(fmt.Sprintf("unsupported encoding %q", name), nil)
}

func normalizeEncoding(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	return name
}
