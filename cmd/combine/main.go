package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	"schemapipe/internal/config"
	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/exporter"
	"schemapipe/internal/files"
	"schemapipe/internal/infrastructure"
	"schemapipe/internal/ingest"
)

func main() {
	dir := flag.String("dir", "", "directory containing cleaned outputs (defaults to data/output)")
	out := flag.String("out", "", "combined output path (defaults to combined.csv in the output directory)")
	mode := flag.String("mode", "concat", "combine mode: concat appends rows, merge joins rows on key columns")
	on := flag.String("on", "", "comma-separated key columns for merge mode")
	join := flag.String("join", "outer", "merge join: outer keeps every key, inner keeps keys present in every input")
	flag.Parse()

	// Optional .env file for local development; the environment wins when
	// both define a key.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
		cfg.Logging.FilePath = "logs/combine.log"
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		slog.Error("Failed to resolve data directories", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	if *dir == "" {
		*dir = paths.OutputDir
	}
	if *out == "" {
		*out = filepath.Join(paths.OutputDir, "combined.csv")
	}

	keys := splitKeys(*on)
	if *mode == "merge" && len(keys) == 0 {
		logger.Error("Merge mode requires key columns", slog.String("flag", "-on"))
		fmt.Fprintln(os.Stderr, "merge mode requires -on with at least one key column")
		os.Exit(1)
	}

	logger.Info("Starting combine",
		slog.String("mode", *mode),
		slog.String("input_dir", *dir),
		slog.String("output_file", *out),
		slog.String("keys", *on))

	discovery := files.NewDiscovery(paths.Root)
	outputs, err := discovery.FindCleanedOutputs(*dir)
	if err != nil {
		logger.Error("Failed to scan output directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("Found %d cleaned outputs\n", len(outputs))
	if len(outputs) == 0 {
		logger.Info("No cleaned outputs to combine", slog.String("dir", *dir))
		return
	}

	reader := ingest.NewReader(logger)
	ctx := context.Background()

	var rows int
	switch *mode {
	case "concat":
		rows, err = concatOutputs(ctx, reader, outputs, *out)
	case "merge":
		rows, err = mergeOutputs(ctx, reader, outputs, keys, *join, *out)
	default:
		logger.Error("Unknown combine mode", slog.String("mode", *mode))
		os.Exit(1)
	}
	if err != nil {
		logger.Error("Combine failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "combine failed: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Combine complete",
		slog.Int("inputs", len(outputs)),
		slog.Int("rows", rows),
		slog.String("output_file", *out))
	fmt.Printf("Combined %d files into %s (%d rows)\n", len(outputs), *out, rows)
}

// concatOutputs appends the rows of every input to one CSV, with a
// source_file column recording where each row came from. Every input must
// carry the identical column set; the first one seen fixes the schema.
func concatOutputs(ctx context.Context, reader *ingest.Reader, outputs []files.FileInfo, outPath string) (int, error) {
	var (
		writer *exporter.StreamWriter
		header []string
		rows   int
	)

	for i, f := range outputs {
		fmt.Printf("Processing file %d of %d: %s\n", i+1, len(outputs), f.Name)

		tables, err := reader.ReadFile(ctx, f.Path, ingest.Options{})
		if err != nil {
			return rows, fmt.Errorf("read %s: %w", f.Name, err)
		}
		table := tables[0]
		if len(table.Rows) == 0 {
			continue
		}

		fileHeader := table.Rows[0]
		if writer == nil {
			header = fileHeader
			writer, err = exporter.NewStreamWriter(outPath, append(slices.Clone(header), "source_file"))
			if err != nil {
				return rows, err
			}
		} else if !slices.Equal(fileHeader, header) {
			writer.Close()
			return rows, fmt.Errorf("%w: %s columns %v, expected %v",
				apierrors.ErrSchemaMismatch, f.Name, fileHeader, header)
		}

		for _, row := range table.Rows[1:] {
			record := make([]string, len(header)+1)
			copy(record, row)
			record[len(header)] = f.Name
			if err := writer.WriteRecord(record); err != nil {
				writer.Close()
				return rows, fmt.Errorf("write row from %s: %w", f.Name, err)
			}
			rows++
		}
	}

	if writer == nil {
		return 0, fmt.Errorf("no input carried a header row")
	}
	return rows, writer.Close()
}

// mergedRow accumulates one output row across inputs. First non-empty
// value wins per column, so earlier inputs are never overwritten.
type mergedRow struct {
	values   map[string]string
	files    int
	lastFile int
}

// mergeOutputs joins the inputs on the key columns. Columns form the
// union of all input columns in first-seen order; keys keep the order
// they first appear in. An outer join keeps every key, an inner join
// only keys present in every non-empty input.
func mergeOutputs(ctx context.Context, reader *ingest.Reader, outputs []files.FileInfo, keys []string, join, outPath string) (int, error) {
	if join != "outer" && join != "inner" {
		return 0, fmt.Errorf("unknown join %q, expected outer or inner", join)
	}

	var (
		columns      []string
		columnSeen   = map[string]bool{}
		merged       = map[string]*mergedRow{}
		order        []string
		contributing int
	)

	for fi, f := range outputs {
		fmt.Printf("Processing file %d of %d: %s\n", fi+1, len(outputs), f.Name)

		tables, err := reader.ReadFile(ctx, f.Path, ingest.Options{})
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", f.Name, err)
		}
		table := tables[0]
		if len(table.Rows) < 2 {
			continue
		}

		header := table.Rows[0]
		index := make(map[string]int, len(header))
		for i, col := range header {
			index[col] = i
			if !columnSeen[col] {
				columnSeen[col] = true
				columns = append(columns, col)
			}
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				return 0, fmt.Errorf("%w: %s has no %q column", apierrors.ErrSchemaMismatch, f.Name, k)
			}
		}
		contributing++

		for _, row := range table.Rows[1:] {
			parts := make([]string, len(keys))
			for i, k := range keys {
				parts[i] = cellAt(row, index[k])
			}
			key := strings.Join(parts, "\x1f")

			m, ok := merged[key]
			if !ok {
				m = &mergedRow{values: map[string]string{}, lastFile: -1}
				merged[key] = m
				order = append(order, key)
			}
			if m.lastFile != fi {
				m.lastFile = fi
				m.files++
			}
			for col, ci := range index {
				if v := cellAt(row, ci); v != "" && m.values[col] == "" {
					m.values[col] = v
				}
			}
		}
	}

	if contributing == 0 {
		return 0, fmt.Errorf("no input carried data rows")
	}

	writer, err := exporter.NewStreamWriter(outPath, columns)
	if err != nil {
		return 0, err
	}

	rows := 0
	for _, key := range order {
		m := merged[key]
		if join == "inner" && m.files < contributing {
			continue
		}
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = m.values[col]
		}
		if err := writer.WriteRecord(record); err != nil {
			writer.Close()
			return rows, err
		}
		rows++
	}
	return rows, writer.Close()
}

// cellAt reads a cell, tolerating short rows.
func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// splitKeys parses the -on flag into trimmed, non-empty column names.
func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	var keys []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}
