// Package diagnostics profiles transformed tables column by column.
//
// A profile reports completeness, uniqueness and a numeric summary per
// column, plus the most common values. Profiles ride along on outcome
// records so a quarantined file can be triaged without reopening the
// source workbook.
package diagnostics
