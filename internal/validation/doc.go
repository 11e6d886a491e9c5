// Package validation decides whether a table is allowed out of the pipeline.
//
// The contract validator checks a transformed table against the canonical
// schema contract, layered with per-template overrides for field types and
// required fields. Checks are exhaustive rather than fail-fast: a result is
// either Valid with a type-coerced copy, or Invalid with the table unchanged
// and every violation listed for the quarantine error log. The file
// validator guards the other end of the pipeline, vetting inbox directories
// and source files before ingest touches them.
package validation
