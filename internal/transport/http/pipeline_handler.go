package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "schemapipe/internal/errors"
	"schemapipe/internal/infrastructure"
	"schemapipe/internal/middleware"
	"schemapipe/internal/services"
	"schemapipe/pkg/contracts/domain"
)

// Hub is the slice of the websocket hub the handlers broadcast through.
type Hub interface {
	BroadcastError(code, message, details, step string, recoverable bool)
	BroadcastRefresh(source string, components []string)
}

// PipelineHandler serves the processing and preview endpoints. Previews
// run the ingest, mapping, transform and validation stages without
// touching the source file; process runs the full pipeline and moves it.
type PipelineHandler struct {
	service   PipelineServiceInterface
	templates TemplateServiceInterface
	wsHub     Hub
	logger    *slog.Logger
}

// NewPipelineHandler creates a new pipeline handler. The hub may be nil;
// broadcasts are then skipped.
func NewPipelineHandler(service PipelineServiceInterface, templates TemplateServiceInterface, wsHub Hub, logger *slog.Logger) *PipelineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineHandler{
		service:   service,
		templates: templates,
		wsHub:     wsHub,
		logger:    logger.With(slog.String("handler", "pipeline")),
	}
}

// ProcessFileRequest is the body of POST /api/v1/process.
type ProcessFileRequest struct {
	SourceFile      string `json:"source_file"`
	Provider        string `json:"provider,omitempty"`
	TemplateKey     string `json:"template_key,omitempty"`
	ValidationLevel string `json:"validation_level,omitempty"`
}

// Bind validates the request after decoding.
func (req *ProcessFileRequest) Bind(r *http.Request) error {
	if req.SourceFile == "" {
		return fmt.Errorf("source_file is required")
	}
	return validateLevel(req.ValidationLevel)
}

// ProcessFileResponse reports a completed pipeline run.
type ProcessFileResponse struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	OutputPath string                 `json:"output_path,omitempty"`
	RowCount   int                    `json:"row_count"`
	Metrics    domain.PipelineMetrics `json:"metrics"`
	Record     *domain.OutcomeRecord  `json:"record"`
}

// BatchProcessRequest is the body of POST /api/v1/process/batch. With no
// files and no input_dir the configured input directory is scanned,
// treating its first-level subdirectories as per-provider drops.
type BatchProcessRequest struct {
	InputDir        string   `json:"input_dir,omitempty"`
	Files           []string `json:"files,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	TemplateKey     string   `json:"template_key,omitempty"`
	ValidationLevel string   `json:"validation_level,omitempty"`
	MaxWorkers      int      `json:"max_workers,omitempty"`
}

// Bind validates the request after decoding.
func (req *BatchProcessRequest) Bind(r *http.Request) error {
	if req.MaxWorkers < 0 || req.MaxWorkers > 32 {
		return fmt.Errorf("max_workers must be between 0 and 32")
	}
	return validateLevel(req.ValidationLevel)
}

// IngestRequest is the body of POST /api/v1/ingest. Sheet and HeaderRow
// override the template for this preview only.
type IngestRequest struct {
	SourceFile  string `json:"source_file"`
	TemplateKey string `json:"template_key,omitempty"`
	Sheet       string `json:"sheet,omitempty"`
	HeaderRow   *int   `json:"header_row,omitempty"`
	SampleRows  int    `json:"sample_rows,omitempty"`
}

// Bind validates the request after decoding.
func (req *IngestRequest) Bind(r *http.Request) error {
	if req.SourceFile == "" {
		return fmt.Errorf("source_file is required")
	}
	if req.SampleRows < 0 || req.SampleRows > 100 {
		return fmt.Errorf("sample_rows must be between 0 and 100")
	}
	return nil
}

// TransformRequest is the body of POST /api/v1/transform. The template
// comes inline from the review screen or by key from the store.
type TransformRequest struct {
	Template    *domain.Template `json:"template,omitempty"`
	TemplateKey string           `json:"template_key,omitempty"`
	Rows        [][]string       `json:"rows"`
}

// Bind validates the request after decoding.
func (req *TransformRequest) Bind(r *http.Request) error {
	if req.Template == nil && req.TemplateKey == "" {
		return fmt.Errorf("template or template_key is required")
	}
	if len(req.Rows) == 0 {
		return fmt.Errorf("rows are required")
	}
	return nil
}

// ValidateRequest is the body of POST /api/v1/validate.
type ValidateRequest struct {
	Template    *domain.Template `json:"template,omitempty"`
	TemplateKey string           `json:"template_key,omitempty"`
	Rows        [][]string       `json:"rows"`
	Level       string           `json:"level,omitempty"`
}

// Bind validates the request after decoding.
func (req *ValidateRequest) Bind(r *http.Request) error {
	if req.Template == nil && req.TemplateKey == "" {
		return fmt.Errorf("template or template_key is required")
	}
	if len(req.Rows) == 0 {
		return fmt.Errorf("rows are required")
	}
	return validateLevel(req.Level)
}

func validateLevel(level string) error {
	switch level {
	case "", "off", "contract", "strict":
		return nil
	default:
		return fmt.Errorf("invalid validation level: %s", level)
	}
}

// ProcessFile handles POST /api/v1/process. An archived file returns the
// outcome record with its output location; a quarantined file returns a
// 422 problem carrying the violation details and error log path.
func (h *PipelineHandler) ProcessFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("pipeline-handler")

	ctx, span := tracer.Start(ctx, "pipeline_handler.process_file",
		trace.WithAttributes(
			attribute.String("http.route", "/api/v1/process"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	req := &ProcessFileRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("pipeline.source_file", req.SourceFile))
	h.logger.InfoContext(ctx, "process request",
		slog.String("source_file", req.SourceFile),
		slog.String("template_key", req.TemplateKey),
		slog.String("request_id", reqID))

	procCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	record, err := h.service.ProcessFile(procCtx, services.ProcessRequest{
		SourceFile:      req.SourceFile,
		Provider:        req.Provider,
		TemplateKey:     req.TemplateKey,
		ValidationLevel: domain.ValidationLevel(req.ValidationLevel),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "process failed")
		middleware.RecordSystemError(ctx, "process_failed", "pipeline_handler")
		if h.wsHub != nil && !errors.Is(err, context.Canceled) {
			h.wsHub.BroadcastError("ERR_PROCESS_FAILED", "Processing failed", err.Error(), "", false)
		}
		h.handleError(w, r, err, map[string]interface{}{
			"source_file": req.SourceFile,
		})
		return
	}

	middleware.RecordFileOutcomeMetrics(ctx, record.SourceFile, record.Archived(),
		record.Metrics.RowsIn, record.Metrics.RowsOut, record.Metrics.ViolationCount,
		record.Metrics.Duration)
	span.SetAttributes(
		attribute.String("pipeline.state", string(record.State)),
		attribute.Int("pipeline.rows_out", record.Metrics.RowsOut),
	)

	if !record.Archived() {
		h.renderQuarantined(w, r, record)
		return
	}

	render.JSON(w, r, &ProcessFileResponse{
		Success:    true,
		Message:    fmt.Sprintf("Archived %s with %d rows", record.SourceFile, record.Metrics.RowsOut),
		OutputPath: record.OutputPath,
		RowCount:   record.Metrics.RowsOut,
		Metrics:    record.Metrics,
		Record:     record,
	})
}

// renderQuarantined reports a quarantined run as a 422 problem with the
// violation list and the error log location.
func (h *PipelineHandler) renderQuarantined(w http.ResponseWriter, r *http.Request, record *domain.OutcomeRecord) {
	ctx := r.Context()
	traceID := infrastructure.TraceIDFromContext(ctx)

	violations := make([]string, 0, len(record.Violations))
	for _, v := range record.Violations {
		violations = append(violations, v.String())
	}

	if h.wsHub != nil {
		code := "ERR_QUARANTINED"
		recoverable := false
		if len(record.Violations) > 0 {
			code = "ERR_CONTRACT_VIOLATIONS"
			recoverable = true
		}
		h.wsHub.BroadcastError(code, "File quarantined", record.FailureReason, "validate", recoverable)
	}

	h.logger.WarnContext(ctx, "file quarantined",
		slog.String("source_file", record.SourceFile),
		slog.String("reason", record.FailureReason),
		slog.Int("violations", record.Metrics.ViolationCount))

	completedAt := record.CompletedAt
	details := &apierrors.QuarantineDetails{
		SourceFile:     record.SourceFile,
		FailureReason:  record.FailureReason,
		ViolationCount: record.Metrics.ViolationCount,
		Violations:     violations,
		ErrorLogPath:   record.ErrorLogPath,
		CompletedAt:    &completedAt,
	}
	render.Render(w, r, apierrors.NewQuarantinedProblem(details, traceID))
}

// ProcessBatch handles POST /api/v1/process/batch.
func (h *PipelineHandler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	tracer := otel.Tracer("pipeline-handler")

	ctx, span := tracer.Start(ctx, "pipeline_handler.process_batch",
		trace.WithAttributes(
			attribute.String("http.route", "/api/v1/process/batch"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	req := &BatchProcessRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "batch request",
		slog.String("input_dir", req.InputDir),
		slog.Int("files", len(req.Files)),
		slog.Int("max_workers", req.MaxWorkers),
		slog.String("request_id", reqID))

	batchCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	summary, err := h.service.ProcessBatch(batchCtx, services.BatchRequest{
		InputDir:        req.InputDir,
		Files:           req.Files,
		Provider:        req.Provider,
		TemplateKey:     req.TemplateKey,
		ValidationLevel: domain.ValidationLevel(req.ValidationLevel),
		MaxWorkers:      req.MaxWorkers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		h.handleError(w, r, err, nil)
		return
	}

	span.SetAttributes(
		attribute.Int("batch.total", summary.Total),
		attribute.Int("batch.archived", summary.Archived),
		attribute.Int("batch.quarantined", summary.Quarantined),
	)
	h.logger.InfoContext(ctx, "batch completed",
		slog.Int("total", summary.Total),
		slog.Int("archived", summary.Archived),
		slog.Int("quarantined", summary.Quarantined),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))

	render.JSON(w, r, summary)
}

// Ingest handles POST /api/v1/ingest: header preview plus the proposed
// mapping, without moving the file or writing output.
func (h *PipelineHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("pipeline-handler")

	ctx, span := tracer.Start(ctx, "pipeline_handler.ingest_preview")
	defer span.End()
	r = r.WithContext(ctx)

	req := &IngestRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("pipeline.source_file", req.SourceFile))

	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	preview, err := h.service.Preview(previewCtx, services.IngestPreviewRequest{
		SourceFile:  req.SourceFile,
		TemplateKey: req.TemplateKey,
		Sheet:       req.Sheet,
		HeaderRow:   req.HeaderRow,
		SampleRows:  req.SampleRows,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "preview failed")
		h.handleError(w, r, err, map[string]interface{}{
			"source_file": req.SourceFile,
		})
		return
	}

	render.JSON(w, r, preview)
}

// Transform handles POST /api/v1/transform: reshape the given rows under
// a template and return the transformed table.
func (h *PipelineHandler) Transform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("pipeline-handler")

	ctx, span := tracer.Start(ctx, "pipeline_handler.transform_preview")
	defer span.End()
	r = r.WithContext(ctx)

	req := &TransformRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	tpl, err := h.resolveTemplate(ctx, req.Template, req.TemplateKey)
	if err != nil {
		h.handleError(w, r, err, nil)
		return
	}

	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := h.service.TransformPreview(previewCtx, tpl, req.Rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")
		h.handleError(w, r, err, nil)
		return
	}

	span.SetAttributes(attribute.Int("transform.rows_out", result.Metrics.RowsOut))
	render.JSON(w, r, map[string]interface{}{
		"columns":   result.Table.Columns,
		"rows":      result.Table.Rows,
		"row_count": result.Table.RowCount(),
		"metrics":   result.Metrics,
	})
}

// Validate handles POST /api/v1/validate: check the given rows against
// the output contract and return every violation.
func (h *PipelineHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("pipeline-handler")

	ctx, span := tracer.Start(ctx, "pipeline_handler.validate_preview")
	defer span.End()
	r = r.WithContext(ctx)

	req := &ValidateRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderBindError(w, r, err)
		return
	}

	tpl, err := h.resolveTemplate(ctx, req.Template, req.TemplateKey)
	if err != nil {
		h.handleError(w, r, err, nil)
		return
	}

	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := h.service.ValidatePreview(previewCtx, tpl, req.Rows, domain.ValidationLevel(req.Level))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		h.handleError(w, r, err, nil)
		return
	}

	span.SetAttributes(
		attribute.Bool("validation.valid", result.Valid),
		attribute.Int("validation.violations", len(result.Violations)),
	)
	render.JSON(w, r, result)
}

func (h *PipelineHandler) resolveTemplate(ctx context.Context, inline *domain.Template, key string) (*domain.Template, error) {
	if inline != nil {
		return inline, nil
	}
	return h.templates.Get(ctx, key)
}

func (h *PipelineHandler) renderBindError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	problem := apierrors.NewProblemDetails(
		http.StatusBadRequest,
		"/errors/validation-failed",
		"Validation Failed",
		err.Error(),
		r.URL.Path+"#"+reqID,
	).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))
	render.Render(w, r, problem)
}

// handleError maps service errors onto problem responses. Pipeline
// sentinels carry their own statuses through the pipeline error mapper.
func (h *PipelineHandler) handleError(w http.ResponseWriter, r *http.Request, err error, extensions map[string]interface{}) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	traceID := infrastructure.TraceIDFromContext(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("path", r.URL.Path))

	instance := r.URL.Path + "#" + reqID
	var problem *apierrors.ProblemDetails

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		problem = apierrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			err.Error(),
			instance,
		)

	case errors.Is(err, services.ErrNoSourceFiles):
		problem = apierrors.NewProblemDetails(
			http.StatusNotFound,
			"/errors/no-source-files",
			"No Source Files",
			"No processable files matched the batch request",
			instance,
		)

	case errors.Is(err, context.DeadlineExceeded):
		problem = apierrors.NewProblemDetails(
			http.StatusGatewayTimeout,
			"/errors/timeout",
			"Request Timeout",
			"The pipeline run exceeded the request deadline",
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
