package operations

import (
	"context"
	"log/slog"
	"time"

	"schemapipe/internal/infrastructure"
)

// Run lifecycle logging. The manager has no injected logger; these
// helpers bind the context's trace ID so run and step events correlate
// with the request log.

func (m *Manager) logOperationStart(ctx context.Context, operationID string, req OperationRequest) {
	infrastructure.LoggerWithContext(ctx).InfoContext(ctx, "operation_start",
		slog.String("operation_id", operationID),
		slog.String("mode", req.Mode),
		slog.String("source_file", req.SourceFile),
		slog.String("template_key", req.TemplateKey),
		slog.Any("parameters", req.Parameters))
}

func (m *Manager) logOperationComplete(ctx context.Context, operationID string, duration time.Duration, status string) {
	infrastructure.LoggerWithContext(ctx).InfoContext(ctx, "operation_complete",
		slog.String("operation_id", operationID),
		slog.String("status", status),
		slog.Duration("duration", duration))
}

func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	infrastructure.LoggerWithContext(ctx).ErrorContext(ctx, "operation_error",
		slog.String("operation_id", operationID),
		slog.String("error", errMessage(err)))
}

func (m *Manager) logStepStart(ctx context.Context, operationID, stepID string) {
	infrastructure.LoggerWithContext(ctx).InfoContext(ctx, "step_start",
		slog.String("operation_id", operationID),
		slog.String("step", stepID))
}

func (m *Manager) logStepComplete(ctx context.Context, operationID, stepID string, duration time.Duration) {
	infrastructure.LoggerWithContext(ctx).InfoContext(ctx, "step_complete",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

func (m *Manager) logStepError(ctx context.Context, operationID, stepID string, err error) {
	infrastructure.LoggerWithContext(ctx).ErrorContext(ctx, "step_error",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.String("error", errMessage(err)))
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
