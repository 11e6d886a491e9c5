package exporter

import (
	"path/filepath"
	"strings"
)

// NormalizeFormat lowercases a format name and defaults empty to csv.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return FormatCSV
	}
	return f
}

// Extension returns the file extension for an output format, dot included.
func Extension(format string) string {
	switch NormalizeFormat(format) {
	case FormatXLSX:
		return ".xlsx"
	case FormatParquet:
		return ".parquet"
	default:
		return ".csv"
	}
}

// OutputFileName derives the output file name for a source file: the source
// stem plus a _clean marker plus the format extension, so
// "acme_jan.xlsx" becomes "acme_jan_clean.csv".
func OutputFileName(sourceFile, format string) string {
	base := filepath.Base(sourceFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_clean" + Extension(format)
}
