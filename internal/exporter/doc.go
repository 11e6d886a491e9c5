// Package exporter renders validated tables to their output files.
//
// The writer produces the standardized output in csv (UTF-8 with a BOM so
// Excel opens it correctly), xlsx, or parquet form. Every write is staged
// to a temporary file and renamed into place, so a crash mid-write never
// leaves a half-written output behind. A streaming CSV writer remains for
// the combine tool, whose merged outputs can outgrow memory.
package exporter
