package main

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/files"
	"schemapipe/internal/ingest"
)

func testReader() *ingest.Reader {
	return ingest.NewReader(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeOutput(t *testing.T, dir, name string, lines []string) files.FileInfo {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return files.FileInfo{Path: path, Name: name}
}

func readCombined(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := strings.TrimPrefix(string(data), "\uFEFF")
	records, err := csv.NewReader(strings.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestConcatOutputsAppendsRows(t *testing.T) {
	dir := t.TempDir()
	inputs := []files.FileInfo{
		writeOutput(t, dir, "jan_clean.csv", []string{
			"provider_id,sales_amount",
			"acme,100.50",
			"acme,40.00",
		}),
		writeOutput(t, dir, "feb_clean.csv", []string{
			"provider_id,sales_amount",
			"globex,75.25",
		}),
	}
	out := filepath.Join(dir, "combined.csv")

	rows, err := concatOutputs(context.Background(), testReader(), inputs, out)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	records := readCombined(t, out)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"provider_id", "sales_amount", "source_file"}, records[0])
	assert.Equal(t, []string{"acme", "100.50", "jan_clean.csv"}, records[1])
	assert.Equal(t, []string{"globex", "75.25", "feb_clean.csv"}, records[3])
}

func TestConcatOutputsRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	inputs := []files.FileInfo{
		writeOutput(t, dir, "jan_clean.csv", []string{
			"provider_id,sales_amount",
			"acme,100.50",
		}),
		writeOutput(t, dir, "feb_clean.csv", []string{
			"provider_id,region",
			"globex,north",
		}),
	}
	out := filepath.Join(dir, "combined.csv")

	_, err := concatOutputs(context.Background(), testReader(), inputs, out)
	require.ErrorIs(t, err, apierrors.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "feb_clean.csv",
		"the error must name the offending file")
}

func TestMergeOutputsOuterJoin(t *testing.T) {
	dir := t.TempDir()
	inputs := []files.FileInfo{
		writeOutput(t, dir, "jan_clean.csv", []string{
			"article_sku,jan_amount",
			"AB-1,10",
			"AB-2,20",
		}),
		writeOutput(t, dir, "feb_clean.csv", []string{
			"article_sku,feb_amount",
			"AB-1,30",
			"AB-3,40",
		}),
	}
	out := filepath.Join(dir, "combined.csv")

	rows, err := mergeOutputs(context.Background(), testReader(), inputs, []string{"article_sku"}, "outer", out)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	records := readCombined(t, out)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"article_sku", "jan_amount", "feb_amount"}, records[0])
	assert.Equal(t, []string{"AB-1", "10", "30"}, records[1])
	assert.Equal(t, []string{"AB-2", "20", ""}, records[2])
	assert.Equal(t, []string{"AB-3", "", "40"}, records[3])
}

func TestMergeOutputsInnerJoin(t *testing.T) {
	dir := t.TempDir()
	inputs := []files.FileInfo{
		writeOutput(t, dir, "jan_clean.csv", []string{
			"article_sku,jan_amount",
			"AB-1,10",
			"AB-2,20",
		}),
		writeOutput(t, dir, "feb_clean.csv", []string{
			"article_sku,feb_amount",
			"AB-1,30",
		}),
	}
	out := filepath.Join(dir, "combined.csv")

	rows, err := mergeOutputs(context.Background(), testReader(), inputs, []string{"article_sku"}, "inner", out)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	records := readCombined(t, out)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"AB-1", "10", "30"}, records[1])
}

func TestMergeOutputsFirstValueWins(t *testing.T) {
	dir := t.TempDir()
	inputs := []files.FileInfo{
		writeOutput(t, dir, "jan_clean.csv", []string{
			"article_sku,region",
			"AB-1,north",
		}),
		writeOutput(t, dir, "feb_clean.csv", []string{
			"article_sku,region",
			"AB-1,south",
		}),
	}
	out := filepath.Join(dir, "combined.csv")

	rows, err := mergeOutputs(context.Background(), testReader(), inputs, []string{"article_sku"}, "outer", out)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	records := readCombined(t, out)
	assert.Equal(t, []string{"AB-1", "north"}, records[1],
		"a later input never overwrites a value already present")
}

func TestMergeOutputsMissingKeyColumn(t *testing.T) {
	dir := t.TempDir()
	inputs := []files.FileInfo{
		writeOutput(t, dir, "jan_clean.csv", []string{
			"article_sku,jan_amount",
			"AB-1,10",
		}),
		writeOutput(t, dir, "feb_clean.csv", []string{
			"region,feb_amount",
			"north,30",
		}),
	}
	out := filepath.Join(dir, "combined.csv")

	_, err := mergeOutputs(context.Background(), testReader(), inputs, []string{"article_sku"}, "outer", out)
	require.ErrorIs(t, err, apierrors.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "feb_clean.csv")
}

func TestMergeOutputsRejectsUnknownJoin(t *testing.T) {
	_, err := mergeOutputs(context.Background(), testReader(), nil, []string{"article_sku"}, "cross", "unused.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cross")
}

func TestSplitKeys(t *testing.T) {
	assert.Nil(t, splitKeys(""))
	assert.Equal(t, []string{"article_sku"}, splitKeys("article_sku"))
	assert.Equal(t, []string{"article_sku", "report_date"}, splitKeys(" article_sku , report_date "))
	assert.Nil(t, splitKeys(" , "))
}
