package operations

import (
	"context"
	"fmt"
	"time"

	"schemapipe/internal/infrastructure"
	"schemapipe/pkg/contracts/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "schemapipe.operation"
)

// OperationTracer provides OpenTelemetry instrumentation for pipeline
// operations
type OperationTracer struct {
	tracer          trace.Tracer
	meter           metric.Meter
	businessMetrics *infrastructure.BusinessMetrics
}

// NewOperationTracer creates a new operation tracer
func NewOperationTracer(providers *infrastructure.OTelProviders) (*OperationTracer, error) {
	businessMetrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	return &OperationTracer{
		tracer:          otel.Tracer(TracerName),
		meter:           providers.Meter,
		businessMetrics: businessMetrics,
	}, nil
}

// TraceOperationExecution creates a span for the entire operation execution
func (pt *OperationTracer) TraceOperationExecution(ctx context.Context, operationID string, req OperationRequest) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("operation.execute.%s", req.Mode)
	ctx, span := pt.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("operation.mode", req.Mode),
			attribute.String("operation.source_file", req.SourceFile),
			attribute.String("operation.provider", req.Provider),
		),
	)

	infrastructure.RecordActiveRunChange(ctx, pt.businessMetrics, 1)

	return ctx, span
}

// TraceStepExecution creates a span for a single step execution
func (pt *OperationTracer) TraceStepExecution(ctx context.Context, operationID, stepID string) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("operation.step.%s", stepID)
	ctx, span := pt.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID),
		),
	)

	return ctx, span
}

// RecordOperationCompletion records operation completion with metrics and
// span events
func (pt *OperationTracer) RecordOperationCompletion(ctx context.Context, span trace.Span, operationID string, duration time.Duration, status string) {
	span.SetAttributes(
		attribute.String("operation.status", status),
		attribute.Float64("operation.duration_seconds", duration.Seconds()),
	)

	pt.businessMetrics.PipelineRunDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)

	infrastructure.RecordActiveRunChange(ctx, pt.businessMetrics, -1)

	infrastructure.AddSpanEvent(ctx, "operation.completed", map[string]interface{}{
		"operation_id": operationID,
		"status":       status,
		"duration":     duration.Seconds(),
	})

	if status == string(OperationStatusCompleted) {
		span.SetStatus(codes.Ok, "operation completed")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("operation ended with status: %s", status))
	}
}

// RecordStepCompletion records step completion with metrics and span events
func (pt *OperationTracer) RecordStepCompletion(ctx context.Context, span trace.Span, operationID, stepID string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	span.SetAttributes(
		attribute.String("step.status", status),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)

	infrastructure.RecordStepMetrics(ctx, pt.businessMetrics, operationID, stepID, duration, success)

	infrastructure.AddSpanEvent(ctx, "step.completed", map[string]interface{}{
		"step_id":  stepID,
		"status":   status,
		"duration": duration.Seconds(),
	})

	if success {
		span.SetStatus(codes.Ok, "step completed successfully")
	} else {
		span.SetStatus(codes.Error, "step execution failed")
	}
}

// RecordStepProgress records step progress as span events
func (pt *OperationTracer) RecordStepProgress(ctx context.Context, operationID, stepID string, progress float64, message string) {
	infrastructure.AddSpanEvent(ctx, "step.progress", map[string]interface{}{
		"step_id":  stepID,
		"progress": progress,
		"message":  message,
	})

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Float64("step.progress_percent", progress),
			attribute.String("step.progress_message", message),
		)
	}
}

// RecordStepError records step errors with proper error tracking
func (pt *OperationTracer) RecordStepError(ctx context.Context, operationID, stepID string, err error) {
	infrastructure.RecordError(ctx, err,
		trace.WithAttributes(
			attribute.String("step_id", stepID),
			attribute.String("error.type", "step_execution_error"),
		),
	)

	pt.businessMetrics.PipelineStepsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("status", "error"),
		),
	)
}

// RecordOperationError records operation errors with proper error tracking
func (pt *OperationTracer) RecordOperationError(ctx context.Context, operationID string, err error) {
	infrastructure.RecordError(ctx, err,
		trace.WithAttributes(
			attribute.String("operation_id", operationID),
			attribute.String("error.type", "operation_execution_error"),
		),
	)

	infrastructure.RecordActiveRunChange(ctx, pt.businessMetrics, -1)
}

// RecordOutcome records routing metrics for one source file reaching its
// terminal state
func (pt *OperationTracer) RecordOutcome(ctx context.Context, record *domain.OutcomeRecord) {
	if record == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("source_file", record.SourceFile),
		attribute.String("provider", record.Provider),
	}

	pt.businessMetrics.FilesProcessedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if record.Archived() {
		pt.businessMetrics.FilesArchivedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		pt.businessMetrics.FilesQuarantinedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	if len(record.Violations) > 0 {
		pt.businessMetrics.ViolationsTotal.Add(ctx, int64(len(record.Violations)))
	}

	infrastructure.AddSpanEvent(ctx, "outcome.routed", map[string]interface{}{
		"source_file": record.SourceFile,
		"state":       string(record.State),
		"violations":  len(record.Violations),
	})
}

// RecordTableMetrics records row counts flowing through the pipeline
func (pt *OperationTracer) RecordTableMetrics(ctx context.Context, rowsIn, rowsOut int) {
	if rowsIn > 0 {
		pt.businessMetrics.RowsReadTotal.Add(ctx, int64(rowsIn))
	}
	if rowsOut > 0 {
		pt.businessMetrics.RowsWrittenTotal.Add(ctx, int64(rowsOut))
	}
}

// globalOperationTracer is the process-wide tracer instance
var globalOperationTracer *OperationTracer

// InitGlobalOperationTracer initializes the global operation tracer
func InitGlobalOperationTracer(providers *infrastructure.OTelProviders) error {
	tracer, err := NewOperationTracer(providers)
	if err != nil {
		return err
	}
	globalOperationTracer = tracer
	return nil
}

// GetOperationTracer returns the global operation tracer
func GetOperationTracer() *OperationTracer {
	return globalOperationTracer
}
