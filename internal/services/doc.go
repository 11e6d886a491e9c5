// Package services implements the business logic layer between the HTTP
// transport and the pipeline components. Each service wraps a coherent
// slice of functionality behind a context-aware API that handlers can
// call without knowing how the underlying pieces fit together.
//
// # Services
//
//   - PipelineService: runs source files through the full pipeline,
//     fans batches out across a bounded worker group, and serves the
//     interactive previews used by the mapping UI.
//   - OperationService: synchronous and queued execution of pipeline
//     operations, status lookups, and operation type metadata.
//   - TemplateService: CRUD over saved mapping templates plus promotion
//     of reviewed header overrides into the learned synonym layer.
//   - OutcomeService: read access to the audit trail of archived and
//     quarantined files.
//   - HealthService: liveness, readiness, and system statistics.
//
// # Common Pattern
//
// Services receive their dependencies through constructors and expose
// methods of the form:
//
//	func (s *Service) DoSomething(ctx context.Context, input Input) (Output, error)
//
// Errors that handlers need to translate into specific HTTP statuses are
// wrapped around the sentinel values in errors.go, so callers can use
// errors.Is to classify failures without string matching.
package services
