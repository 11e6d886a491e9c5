package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"schemapipe/pkg/contracts/domain"
)

// encodeParquet renders the table as a snappy-compressed parquet file with
// one optional UTF8 column per table column.
func encodeParquet(table *domain.TransformedTable) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(table.Columns), pfw, 4)
	if err != nil {
		return nil, fmt.Errorf("open parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	names := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		names[i] = parquetColumnName(col)
	}
	for i, row := range table.Rows {
		rec := make(map[string]any, len(names))
		for j, name := range names {
			if j < len(row) {
				rec[name] = row[j]
			} else {
				rec[name] = ""
			}
		}
		// JSONWriter.Write only accepts a JSON string or []byte per record.
		encoded, err := json.Marshal(rec)
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
		if err := pw.Write(encoded); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := pfw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parquetSchema builds the JSON schema understood by the parquet writer.
func parquetSchema(columns []string) string {
	fields := make([]map[string]string, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
				parquetColumnName(col)),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// parquetColumnName strips characters that would corrupt the schema tag.
func parquetColumnName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '=', ';', ' ':
			return '_'
		}
		return r
	}, name)
}
