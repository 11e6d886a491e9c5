// Package outcome routes every processed file to its terminal state.
//
// A file that passed validation is archived: the standardized table is
// written to the output directory and the source file moves to the archive
// directory, with a timestamp suffix when the name is already taken. A file
// that failed is quarantined: the source moves to the quarantine directory
// beside a <name>.error.log listing every violation and a run summary.
// Both paths append an immutable OutcomeRecord to the JSONL audit log, so
// the full history of a batch survives restarts.
package outcome
