package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"schemapipe/internal/operations"
)

// OperationService exposes pipeline operations to the transport layer.
// Operations run either synchronously through the manager or in the
// background through the job queue.
type OperationService struct {
	manager *operations.Manager
	queue   *operations.JobQueue
	logger  *slog.Logger
}

// NewOperationService creates an operation service. The queue may be nil
// when background execution is disabled; Enqueue then reports the queue
// as unavailable.
func NewOperationService(manager *operations.Manager, queue *operations.JobQueue, logger *slog.Logger) *OperationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationService{
		manager: manager,
		queue:   queue,
		logger:  logger.With(slog.String("service", "operations")),
	}
}

// Execute runs an operation synchronously and returns its final state.
func (s *OperationService) Execute(ctx context.Context, req operations.OperationRequest) (*operations.OperationResponse, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	s.logger.InfoContext(ctx, "executing operation",
		slog.String("operation_id", req.ID),
		slog.String("source_file", req.SourceFile))
	return s.manager.Execute(ctx, req)
}

// Enqueue submits an operation for background execution and returns the
// queued job. An empty or "all" step ID queues the full pipeline.
func (s *OperationService) Enqueue(ctx context.Context, req operations.OperationRequest, stepID string) (*operations.Job, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: job queue is not running", ErrServiceUnavailable)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	job := &operations.Job{
		ID:          uuid.NewString(),
		OperationID: req.ID,
		Request:     &req,
	}
	if stepID != "" && stepID != operations.StepAll {
		step, err := s.manager.GetRegistry().Get(stepID)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidInput, stepID)
		}
		job.StepID = step.ID()
		job.StepName = step.Name()
	}

	if err := s.queue.Enqueue(job); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "operation queued",
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("step_id", job.StepID))
	return job, nil
}

// GetOperation returns the live state of a running operation.
func (s *OperationService) GetOperation(ctx context.Context, id string) (*operations.OperationState, error) {
	state, err := s.manager.GetOperation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return state, nil
}

// GetSnapshot returns the broadcast snapshot of an operation. Snapshots
// outlive the operation itself, so finished operations still resolve
// here after the manager has dropped their state.
func (s *OperationService) GetSnapshot(ctx context.Context, id string) (*operations.OperationSnapshot, error) {
	snapshot, ok := s.manager.GetBroadcaster().GetSnapshot(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return snapshot, nil
}

// ListSnapshots returns the broadcast snapshots of all known operations.
func (s *OperationService) ListSnapshots(ctx context.Context) []*operations.OperationSnapshot {
	return s.manager.GetBroadcaster().GetAllSnapshots()
}

// ListOperations returns the states of all operations the manager is
// currently tracking.
func (s *OperationService) ListOperations(ctx context.Context) []*operations.OperationState {
	return s.manager.ListOperations()
}

// CancelOperation cancels a running operation.
func (s *OperationService) CancelOperation(ctx context.Context, id string) error {
	if err := s.manager.CancelOperation(id); err != nil {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	s.logger.InfoContext(ctx, "operation cancelled", slog.String("operation_id", id))
	return nil
}

// GetJob returns a queued job by ID.
func (s *OperationService) GetJob(ctx context.Context, id string) (*operations.Job, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: job queue is not running", ErrServiceUnavailable)
	}
	job, err := s.queue.GetJob(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// ListJobs returns queued jobs matching the filter.
func (s *OperationService) ListJobs(ctx context.Context, filter operations.JobFilter) ([]*operations.Job, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: job queue is not running", ErrServiceUnavailable)
	}
	return s.queue.ListJobs(filter)
}

// CancelJob cancels a pending or running job.
func (s *OperationService) CancelJob(ctx context.Context, id string) error {
	if s.queue == nil {
		return fmt.Errorf("%w: job queue is not running", ErrServiceUnavailable)
	}
	if err := s.queue.CancelJob(id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "job cancelled", slog.String("job_id", id))
	return nil
}

// QueueStats reports queue depth, capacity and worker counts.
func (s *OperationService) QueueStats(ctx context.Context) map[string]interface{} {
	if s.queue == nil {
		return map[string]interface{}{"enabled": false}
	}
	stats := s.queue.GetQueueStats()
	stats["enabled"] = true
	return stats
}

// Metrics counts tracked operations by status.
func (s *OperationService) Metrics(ctx context.Context) map[string]interface{} {
	ops := s.manager.ListOperations()
	counts := make(map[operations.OperationStatusValue]int)
	for _, op := range ops {
		counts[op.Status]++
	}
	return map[string]interface{}{
		"total":     len(ops),
		"pending":   counts[operations.OperationStatusPending],
		"running":   counts[operations.OperationStatusRunning],
		"completed": counts[operations.OperationStatusCompleted],
		"failed":    counts[operations.OperationStatusFailed],
		"cancelled": counts[operations.OperationStatusCancelled],
	}
}

// OperationTypes describes the runnable operations for the frontend: the
// full pipeline plus each registered step with its parameters.
func (s *OperationService) OperationTypes(ctx context.Context) []operations.OperationType {
	steps, err := s.manager.GetRegistry().GetDependencyOrder()
	if err != nil {
		steps = s.manager.GetRegistry().List()
	}

	types := make([]operations.OperationType, 0, len(steps)+1)
	types = append(types, operations.OperationType{
		ID:          operations.StepAll,
		Name:        "Full Pipeline",
		Description: "Run every step from source ingestion through outcome routing",
		CanRunAlone: true,
		Parameters:  pipelineParameters(),
	})
	for _, step := range steps {
		types = append(types, operations.OperationType{
			ID:           step.ID(),
			Name:         step.Name(),
			Description:  stepDescription(step.ID()),
			Dependencies: step.GetDependencies(),
			CanRunAlone:  len(step.GetDependencies()) == 0,
			Parameters:   stepParameters(step.ID()),
		})
	}
	return types
}

func stepDescription(id string) string {
	descriptions := map[string]string{
		operations.StepIDIngest:    "Read the source workbook or CSV into raw sheet tables",
		operations.StepIDResolve:   "Locate the header row and build final column labels",
		operations.StepIDMap:       "Map raw headers onto the canonical schema",
		operations.StepIDTransform: "Unpivot, combine, aggregate and clean the mapped data",
		operations.StepIDValidate:  "Check the transformed table against the output contract",
		operations.StepIDRoute:     "Archive or quarantine the file and record the outcome",
	}
	if d, ok := descriptions[id]; ok {
		return d
	}
	return "Pipeline step"
}

func pipelineParameters() []operations.ParameterDefinition {
	return []operations.ParameterDefinition{
		{
			Name:        "source_file",
			Type:        "string",
			Description: "Path to the provider export to process",
			Required:    true,
		},
		{
			Name:        "provider",
			Type:        "string",
			Description: "Provider the file came from",
			Required:    false,
		},
		{
			Name:        "template_key",
			Type:        "string",
			Description: "Saved template to replay, defaults to one derived from the file name",
			Required:    false,
		},
		{
			Name:        "validation_level",
			Type:        "select",
			Description: "Contract checking level for this run",
			Required:    false,
			Default:     "contract",
			Options:     []string{"off", "contract", "strict"},
		},
	}
}

func stepParameters(id string) []operations.ParameterDefinition {
	switch id {
	case operations.StepIDIngest:
		return []operations.ParameterDefinition{
			{
				Name:        "source_file",
				Type:        "string",
				Description: "Path to the provider export to read",
				Required:    true,
			},
			{
				Name:        "template_key",
				Type:        "string",
				Description: "Saved template to replay, defaults to one derived from the file name",
				Required:    false,
			},
		}
	case operations.StepIDValidate:
		return []operations.ParameterDefinition{
			{
				Name:        "validation_level",
				Type:        "select",
				Description: "Contract checking level for this run",
				Required:    false,
				Default:     "contract",
				Options:     []string{"off", "contract", "strict"},
			},
		}
	case operations.StepIDRoute:
		return []operations.ParameterDefinition{
			{
				Name:        "provider",
				Type:        "string",
				Description: "Provider recorded on the outcome",
				Required:    false,
			},
		}
	default:
		return nil
	}
}
