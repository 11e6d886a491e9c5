// Package transform reshapes a mapped table into its canonical output form.
//
// The engine applies a confirmed column mapping, combines sheets, unpivots
// wide layouts, aggregates on group keys and runs the cleanup chain. Every
// operation is a pure function over the table: inputs are never mutated and
// each step returns a new table, so a pipeline run is an ordered composition
// with no state between files. The package also owns the type coercion
// helpers used by the validator and diagnostics.
package transform
