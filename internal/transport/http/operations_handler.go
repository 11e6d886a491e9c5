package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/infrastructure"
	"schemapipe/internal/middleware"
	"schemapipe/internal/operations"
	"schemapipe/internal/services"
)

// OperationsHandler serves the operation endpoints: starting pipeline
// runs, polling their snapshots and managing queued jobs.
type OperationsHandler struct {
	service OperationServiceInterface
	logger  *slog.Logger
	params  *middleware.QueryParamValidator
}

// NewOperationsHandler creates a new operations handler.
func NewOperationsHandler(service OperationServiceInterface, logger *slog.Logger) *OperationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "operations")),
		params:  middleware.NewQueryParamValidator(logger, apierrors.NewErrorHandler(logger, false)),
	}
}

// Routes returns the operations router.
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/types", h.GetOperationTypes)
	r.Get("/stats", h.GetStats)
	r.Post("/", h.StartOperation)
	r.Get("/", h.ListOperations)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJobStatus)
	r.Delete("/jobs/{id}", h.CancelJob)
	r.Get("/{id}", h.GetOperationStatus)
	r.Post("/{id}/stop", h.StopOperation)
	return r
}

// OperationStartRequest is the body of POST /api/v1/operations.
type OperationStartRequest struct {
	SourceFile      string                 `json:"source_file"`
	Provider        string                 `json:"provider,omitempty"`
	TemplateKey     string                 `json:"template_key,omitempty"`
	ValidationLevel string                 `json:"validation_level,omitempty"`
	StepID          string                 `json:"step_id,omitempty"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Sync            bool                   `json:"sync,omitempty"`
}

// Bind validates the request after decoding.
func (req *OperationStartRequest) Bind(r *http.Request) error {
	if req.SourceFile == "" {
		return fmt.Errorf("source_file is required")
	}
	switch req.ValidationLevel {
	case "", "off", "contract", "strict":
	default:
		return fmt.Errorf("invalid validation_level: %s", req.ValidationLevel)
	}
	return nil
}

func (req *OperationStartRequest) toOperationRequest() operations.OperationRequest {
	opReq := operations.OperationRequest{
		SourceFile:  req.SourceFile,
		Provider:    req.Provider,
		TemplateKey: req.TemplateKey,
		Parameters:  req.Parameters,
	}
	set := func(key string, value interface{}) {
		if opReq.Parameters == nil {
			opReq.Parameters = make(map[string]interface{})
		}
		opReq.Parameters[key] = value
	}
	if req.ValidationLevel != "" {
		set(operations.ContextKeyValidationLevel, req.ValidationLevel)
	}
	if req.StepID != "" && req.StepID != operations.StepAll {
		set("step", req.StepID)
	}
	return opReq
}

// StartOperation handles POST /api/v1/operations. The run is queued for
// background execution and a 202 with a poll URL is returned; callers
// that set sync, and deployments without a job queue, run the pipeline
// inside the request instead.
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.start_operation",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/v1/operations"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	req := &OperationStartRequest{}
	if err := render.Bind(r, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			err.Error(),
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
		render.Render(w, r, problem)
		return
	}

	span.SetAttributes(
		attribute.String("operation.source_file", req.SourceFile),
		attribute.String("operation.step_id", req.StepID),
		attribute.Bool("operation.sync", req.Sync),
	)

	h.logger.InfoContext(ctx, "operation start request",
		slog.String("source_file", req.SourceFile),
		slog.String("step_id", req.StepID),
		slog.Bool("sync", req.Sync),
		slog.String("request_id", reqID))

	opReq := req.toOperationRequest()

	if req.Sync {
		h.executeSync(w, r, opReq)
		return
	}

	job, err := h.service.Enqueue(ctx, opReq, req.StepID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			h.handleError(w, r, err, nil)
		case errors.Is(err, services.ErrServiceUnavailable):
			// No queue running, fall back to an in-request run.
			h.executeSync(w, r, opReq)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "enqueue failed")
			h.logger.WarnContext(ctx, "job queue rejected operation",
				slog.String("error", err.Error()),
				slog.String("request_id", reqID))
			problem := apierrors.NewProblemDetails(
				http.StatusServiceUnavailable,
				"/errors/queue-full",
				"Queue Full",
				"The job queue cannot accept more operations, retry later",
				r.URL.Path+"#"+reqID,
			).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)).
				WithExtension("retry_after", 30)
			render.Render(w, r, problem)
		}
		return
	}

	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("operation.id", job.OperationID),
	)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"job_id":       job.ID,
		"operation_id": job.OperationID,
		"status":       string(job.Status),
		"message":      "Operation queued for execution",
		"poll_url":     "/api/v1/operations/jobs/" + job.ID,
	})
}

// executeSync runs the operation inside the request with a generous
// timeout. The response carries the final per-step states and, when the
// routing step ran, the file's outcome record.
func (h *OperationsHandler) executeSync(w http.ResponseWriter, r *http.Request, opReq operations.OperationRequest) {
	ctx := r.Context()

	execCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	resp, err := h.service.Execute(execCtx, opReq)
	if err != nil {
		h.handleError(w, r, err, map[string]interface{}{
			"operation_id": opReq.ID,
			"source_file":  opReq.SourceFile,
		})
		return
	}

	h.logger.InfoContext(ctx, "operation completed",
		slog.String("operation_id", resp.ID),
		slog.String("status", string(resp.Status)),
		slog.Duration("duration", resp.Duration))

	render.JSON(w, r, resp)
}

// GetOperationStatus handles GET /api/v1/operations/{id}. Snapshots
// outlive the run, so finished operations still resolve here.
func (h *OperationsHandler) GetOperationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "id")
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.get_operation_status",
		trace.WithAttributes(
			attribute.String("http.route", "/api/v1/operations/{id}"),
			attribute.String("operation.id", operationID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	snapshot, err := h.service.GetSnapshot(statusCtx, operationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot lookup failed")
		h.handleError(w, r, err, map[string]interface{}{
			"operation_id": operationID,
		})
		return
	}

	span.SetAttributes(attribute.String("operation.status", snapshot.Status))
	render.JSON(w, r, snapshot)
}

var listableStatuses = map[string]bool{
	"pending":   true,
	"running":   true,
	"completed": true,
	"failed":    true,
	"cancelled": true,
}

// ListOperations handles GET /api/v1/operations. An optional status
// query parameter narrows the listing.
func (h *OperationsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.list_operations",
		trace.WithAttributes(
			attribute.String("http.route", "/api/v1/operations"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" && !listableStatuses[statusFilter] {
		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			fmt.Sprintf("invalid status filter: %s", statusFilter),
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
		render.Render(w, r, problem)
		return
	}

	snapshots := h.service.ListSnapshots(ctx)
	if statusFilter != "" {
		filtered := snapshots[:0]
		for _, s := range snapshots {
			if s.Status == statusFilter {
				filtered = append(filtered, s)
			}
		}
		snapshots = filtered
		span.SetAttributes(attribute.String("filter.status", statusFilter))
	}

	span.SetAttributes(attribute.Int("operations.count", len(snapshots)))
	render.JSON(w, r, map[string]interface{}{
		"operations": snapshots,
		"count":      len(snapshots),
	})
}

// StopOperation handles POST /api/v1/operations/{id}/stop.
func (h *OperationsHandler) StopOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "id")
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.stop_operation",
		trace.WithAttributes(
			attribute.String("http.route", "/api/v1/operations/{id}/stop"),
			attribute.String("operation.id", operationID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	h.logger.InfoContext(ctx, "operation stop request",
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID))

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := h.service.CancelOperation(cancelCtx, operationID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		h.handleError(w, r, err, map[string]interface{}{
			"operation_id": operationID,
		})
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"operation_id": operationID,
		"status":       "cancelled",
		"message":      "Operation cancellation requested",
	})
}

// GetOperationTypes handles GET /api/v1/operations/types.
func (h *OperationsHandler) GetOperationTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.get_operation_types")
	defer span.End()
	r = r.WithContext(ctx)

	typesCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	types := h.service.OperationTypes(typesCtx)
	span.SetAttributes(attribute.Int("operation_types.count", len(types)))
	render.JSON(w, r, types)
}

// GetStats handles GET /api/v1/operations/stats with queue depth and
// per-status operation counts.
func (h *OperationsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	render.JSON(w, r, map[string]interface{}{
		"queue":      h.service.QueueStats(ctx),
		"operations": h.service.Metrics(ctx),
	})
}

// GetJobStatus handles GET /api/v1/operations/jobs/{id}, the poll target
// for queued runs.
func (h *OperationsHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.get_job_status",
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
	defer span.End()
	r = r.WithContext(ctx)

	job, err := h.service.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job lookup failed")
		h.handleError(w, r, err, map[string]interface{}{
			"job_id": jobID,
		})
		return
	}

	span.SetAttributes(attribute.String("job.status", string(job.Status)))
	render.JSON(w, r, job)
}

// ListJobs handles GET /api/v1/operations/jobs.
func (h *OperationsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, ok := h.params.ValidateEnum(w, r, "status",
		[]string{"pending", "running", "completed", "failed", "cancelled"}, "")
	if !ok {
		return
	}
	limit, ok := h.params.ValidateInt(w, r, "limit", 1, 500, 100)
	if !ok {
		return
	}

	filter := operations.JobFilter{
		Status:      operations.JobStatus(status),
		OperationID: r.URL.Query().Get("operation_id"),
		Limit:       limit,
	}

	jobs, err := h.service.ListJobs(ctx, filter)
	if err != nil {
		h.handleError(w, r, err, nil)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CancelJob handles DELETE /api/v1/operations/jobs/{id}.
func (h *OperationsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")
	reqID := middleware.GetRequestID(ctx)

	if err := h.service.CancelJob(ctx, jobID); err != nil {
		// The queue reports terminal jobs and unknown jobs with plain
		// errors, not sentinels.
		msg := err.Error()
		switch {
		case strings.Contains(msg, "not found"):
			problem := apierrors.NewProblemDetails(
				http.StatusNotFound,
				"/errors/not-found",
				"Job Not Found",
				fmt.Sprintf("No job with ID %s exists", jobID),
				r.URL.Path+"#"+reqID,
			).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
			render.Render(w, r, problem)
		case strings.Contains(msg, "cannot be cancelled"):
			problem := apierrors.NewProblemDetails(
				http.StatusConflict,
				"/errors/invalid-state",
				"Job Not Cancellable",
				msg,
				r.URL.Path+"#"+reqID,
			).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
			render.Render(w, r, problem)
		default:
			h.handleError(w, r, err, map[string]interface{}{"job_id": jobID})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleError maps service errors onto problem responses. Unrecognized
// errors fall through to the pipeline error mapper, which knows the
// domain sentinels and defaults to a 500.
func (h *OperationsHandler) handleError(w http.ResponseWriter, r *http.Request, err error, extensions map[string]interface{}) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	traceID := infrastructure.TraceIDFromContext(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method))

	instance := r.URL.Path + "#" + reqID
	var problem *apierrors.ProblemDetails

	switch {
	case errors.Is(err, services.ErrOperationNotFound):
		problem = apierrors.NewProblemDetails(
			http.StatusNotFound,
			"/errors/not-found",
			"Operation Not Found",
			"No operation with this ID is known",
			instance,
		)

	case errors.Is(err, services.ErrJobNotFound):
		problem = apierrors.NewProblemDetails(
			http.StatusNotFound,
			"/errors/not-found",
			"Job Not Found",
			"No job with this ID is known",
			instance,
		)

	case errors.Is(err, services.ErrInvalidInput):
		problem = apierrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			err.Error(),
			instance,
		)

	case errors.Is(err, services.ErrServiceUnavailable):
		problem = apierrors.NewProblemDetails(
			http.StatusServiceUnavailable,
			"/errors/service-unavailable",
			"Service Unavailable",
			"The job queue is not running",
			instance,
		)

	case errors.Is(err, operations.ErrOperationCompleted):
		problem = apierrors.NewProblemDetails(
			http.StatusConflict,
			"/errors/invalid-state",
			"Operation Completed",
			"The operation has already completed and cannot be cancelled",
			instance,
		)

	case errors.Is(err, context.DeadlineExceeded):
		problem = apierrors.NewProblemDetails(
			http.StatusGatewayTimeout,
			"/errors/timeout",
			"Request Timeout",
			"The request timed out while processing",
			instance,
		)

	case errors.Is(err, context.Canceled):
		problem = apierrors.NewProblemDetails(
			http.StatusRequestTimeout,
			"/errors/request-canceled",
			"Request Canceled",
			"The request was canceled",
			instance,
		)

	default:
		if pd, ok := apierrors.MapPipelineError(err, traceID).(*apierrors.ProblemDetails); ok {
			problem = pd
		} else {
			problem = apierrors.NewProblemDetails(
				http.StatusInternalServerError,
				"/errors/internal-error",
				"Internal Server Error",
				"An unexpected error occurred",
				instance,
			)
		}
	}

	problem.WithExtension("trace_id", traceID).
		WithExtension("request_id", reqID)
	for k, v := range extensions {
		problem.WithExtension(k, v)
	}

	render.Render(w, r, problem)
}
