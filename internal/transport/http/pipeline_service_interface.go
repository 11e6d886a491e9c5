package http

import (
	"context"

	"schemapipe/internal/services"
	"schemapipe/internal/transform"
	"schemapipe/pkg/contracts/domain"
)

// PipelineServiceInterface is the slice of the pipeline service behind
// the processing and preview endpoints.
type PipelineServiceInterface interface {
	ProcessFile(ctx context.Context, req services.ProcessRequest) (*domain.OutcomeRecord, error)
	ProcessBatch(ctx context.Context, req services.BatchRequest) (*services.BatchSummary, error)
	Preview(ctx context.Context, req services.IngestPreviewRequest) (*services.IngestPreview, error)
	TransformPreview(ctx context.Context, tpl *domain.Template, rows [][]string) (*transform.Result, error)
	ValidatePreview(ctx context.Context, tpl *domain.Template, rows [][]string, level domain.ValidationLevel) (domain.ValidationResult, error)
}

// TemplateServiceInterface is the slice of the template service behind
// the template CRUD endpoints.
type TemplateServiceInterface interface {
	Get(ctx context.Context, key string) (*domain.Template, error)
	List(ctx context.Context) ([]domain.TemplateInfo, error)
	Save(ctx context.Context, tpl *domain.Template) (int, error)
	Delete(ctx context.Context, key string) error
}

// OutcomeServiceInterface is the slice of the outcome service behind the
// audit endpoints.
type OutcomeServiceInterface interface {
	Recent(ctx context.Context, limit int) ([]domain.OutcomeRecord, error)
	Summary(ctx context.Context) (services.OutcomeSummary, error)
}
