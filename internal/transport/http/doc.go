// Package http implements the HTTP handlers of the mapping pipeline API.
// It is a thin layer between transport and the service layer: handlers
// parse and validate requests, call a service, and render the result.
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service
//	                                             ↓
//	HTTP Response ← render ← Service Response ←─┘
//
// # Error Handling
//
// Errors render as RFC 7807 problem details:
//
//	{
//	    "type": "/errors/template-not-found",
//	    "title": "Template Not Found",
//	    "status": 404,
//	    "detail": "No saved mapping template exists for this source.",
//	    "instance": "/api/v1/templates/broker_x#req-123",
//	    "trace_id": "abc123"
//	}
//
// Service sentinels map to statuses in one place per handler, so the
// same failure always produces the same problem document. Pipeline
// domain errors (missing header, contract violations, unsupported
// formats) go through errors.MapPipelineError.
//
// # Handler Structure
//
// Each handler owns a Routes() method returning a chi.Router, and the
// application mounts those routers under /api/v1. Handlers depend on
// narrow service interfaces declared in this package so tests can stub
// them without the real pipeline.
package http
