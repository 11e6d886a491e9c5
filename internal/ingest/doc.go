// Package ingest reads provider exports into raw tables for the pipeline.
// It supports Excel workbooks via excelize (including merged cell ranges,
// which the header resolver needs to expand spanned labels) and delimited
// text files with configurable delimiter, encoding and leading skip rows.
//
// Readers never interpret cell contents: every cell comes back as the string
// the source carried, ragged rows and all. Header detection, mapping and type
// coercion are downstream concerns.
//
// Basic usage:
//
//	reader := ingest.NewReader(logger)
//	tables, err := reader.ReadFile(ctx, "sales_2024.xlsx", ingest.Options{})
//
// Template-driven reads derive their options from the saved template:
//
//	tables, err := reader.ReadFile(ctx, path, ingest.OptionsFromTemplate(tmpl))
package ingest
