package http

import (
	"context"

	"schemapipe/internal/operations"
)

// OperationServiceInterface is the slice of the operation service the
// transport layer depends on.
type OperationServiceInterface interface {
	Execute(ctx context.Context, req operations.OperationRequest) (*operations.OperationResponse, error)
	Enqueue(ctx context.Context, req operations.OperationRequest, stepID string) (*operations.Job, error)
	GetSnapshot(ctx context.Context, id string) (*operations.OperationSnapshot, error)
	ListSnapshots(ctx context.Context) []*operations.OperationSnapshot
	CancelOperation(ctx context.Context, id string) error
	GetJob(ctx context.Context, id string) (*operations.Job, error)
	ListJobs(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error)
	CancelJob(ctx context.Context, id string) error
	QueueStats(ctx context.Context) map[string]interface{}
	Metrics(ctx context.Context) map[string]interface{}
	OperationTypes(ctx context.Context) []operations.OperationType
}
