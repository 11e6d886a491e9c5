// Package operations provides the step execution framework that drives a
// source file through the processing pipeline.
//
// An operation is one run of the pipeline over one source file, broken into
// ordered steps:
//
//   - ingest: read the source file into raw sheet tables
//   - resolve: locate each sheet's header row and frame the data region
//   - map: assign canonical fields to the resolved headers
//   - transform: apply the mapping plus the template's reshape and cleanup
//   - validate: check the result against the canonical contract
//   - route: archive or quarantine the file and record the outcome
//
// Core components:
//
// Manager orchestrates step execution: dependency order, per-step timeouts,
// retries for retryable failures, and skipping of steps whose dependencies
// failed. Registry holds the registered steps and computes their topological
// order. OperationState tracks the run, carrying the intermediate artifacts
// (raw tables, header specs, mapping, transformed table, validation result,
// outcome record) between steps. StatusBroadcaster is the single authority
// for progress updates pushed to WebSocket clients. JobQueue executes
// operations asynchronously on a bounded worker pool so a batch of files
// can be processed without blocking the caller.
//
// Example usage:
//
//	registry := operations.NewRegistry()
//	for _, step := range operations.StepFactory(deps, logger, options) {
//		registry.Register(step)
//	}
//	manager := operations.NewManager(hub, registry, operations.NewConfig())
//
//	resp, err := manager.Execute(ctx, operations.OperationRequest{
//		SourceFile: "data/input/acme_jan.xlsx",
//		Mode:       operations.ModeSingle,
//	})
//
// On success resp.Outcome carries the terminal record for the file, whether
// it was archived or quarantined.
package operations
