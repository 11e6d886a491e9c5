package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapipe/internal/operations"
)

func newOperationServiceWithQueue(t *testing.T, env *serviceEnv) *OperationService {
	t.Helper()
	queue := operations.NewJobQueue(1, operations.NewMemoryJobStore(), env.manager, env.paths, env.logger)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = queue.Stop(2 * time.Second)
	})
	return NewOperationService(env.manager, queue, env.logger)
}

func TestOperationService_ExecuteRunsPipeline(t *testing.T) {
	env := newServiceEnv(t)
	svc := NewOperationService(env.manager, nil, env.logger)
	source := env.writeCSV(t, "sync.csv", cleanSalesRows())

	resp, err := svc.Execute(context.Background(), operations.OperationRequest{
		SourceFile: source,
		Provider:   "acme",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID, "an operation ID is assigned when the caller omits one")
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	require.NotNil(t, resp.Outcome)
	assert.True(t, resp.Outcome.Archived())
}

func TestOperationService_EnqueueRunsInBackground(t *testing.T) {
	env := newServiceEnv(t)
	svc := newOperationServiceWithQueue(t, env)
	source := env.writeCSV(t, "queued.csv", cleanSalesRows())

	job, err := svc.Enqueue(context.Background(), operations.OperationRequest{
		SourceFile: source,
		Provider:   "acme",
	}, "")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.NotEmpty(t, job.OperationID)
	assert.Empty(t, job.StepID, "an empty step queues the full pipeline")

	require.Eventually(t, func() bool {
		got, err := svc.GetJob(context.Background(), job.ID)
		return err == nil && got.Status == operations.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	snapshot, err := svc.GetSnapshot(context.Background(), job.OperationID)
	require.NoError(t, err)
	assert.Equal(t, job.OperationID, snapshot.OperationID)
}

func TestOperationService_EnqueueSingleStep(t *testing.T) {
	env := newServiceEnv(t)
	svc := newOperationServiceWithQueue(t, env)
	source := env.writeCSV(t, "step_only.csv", cleanSalesRows())

	job, err := svc.Enqueue(context.Background(), operations.OperationRequest{
		SourceFile: source,
	}, operations.StepIDIngest)
	require.NoError(t, err)
	assert.Equal(t, operations.StepIDIngest, job.StepID)
	assert.Equal(t, operations.StepNameIngest, job.StepName)

	require.Eventually(t, func() bool {
		got, err := svc.GetJob(context.Background(), job.ID)
		return err == nil && got.Status == operations.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOperationService_EnqueueUnknownStep(t *testing.T) {
	env := newServiceEnv(t)
	svc := newOperationServiceWithQueue(t, env)

	_, err := svc.Enqueue(context.Background(), operations.OperationRequest{SourceFile: "x.csv"}, "bogus")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestOperationService_EnqueueWithoutQueue(t *testing.T) {
	env := newServiceEnv(t)
	svc := NewOperationService(env.manager, nil, env.logger)

	_, err := svc.Enqueue(context.Background(), operations.OperationRequest{SourceFile: "x.csv"}, "")
	require.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = svc.GetJob(context.Background(), "any")
	require.ErrorIs(t, err, ErrServiceUnavailable)

	stats := svc.QueueStats(context.Background())
	assert.Equal(t, false, stats["enabled"])
}

func TestOperationService_LookupsWrapNotFound(t *testing.T) {
	env := newServiceEnv(t)
	svc := newOperationServiceWithQueue(t, env)

	_, err := svc.GetOperation(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrOperationNotFound)

	_, err = svc.GetSnapshot(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrOperationNotFound)

	err = svc.CancelOperation(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrOperationNotFound)

	_, err = svc.GetJob(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestOperationService_QueueStats(t *testing.T) {
	env := newServiceEnv(t)
	svc := newOperationServiceWithQueue(t, env)

	stats := svc.QueueStats(context.Background())
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 1, stats["workers"])
}

func TestOperationService_Metrics(t *testing.T) {
	env := newServiceEnv(t)
	svc := NewOperationService(env.manager, nil, env.logger)

	metrics := svc.Metrics(context.Background())
	assert.Equal(t, 0, metrics["total"], "finished operations are dropped from the manager")
	assert.Contains(t, metrics, "running")
	assert.Contains(t, metrics, "failed")
}

func TestOperationService_OperationTypes(t *testing.T) {
	env := newServiceEnv(t)
	svc := NewOperationService(env.manager, nil, env.logger)

	types := svc.OperationTypes(context.Background())
	require.Len(t, types, 7, "full pipeline plus the six steps")

	assert.Equal(t, operations.StepAll, types[0].ID)
	assert.True(t, types[0].CanRunAlone)

	byID := map[string]operations.OperationType{}
	for _, ot := range types {
		byID[ot.ID] = ot
	}

	ingestType := byID[operations.StepIDIngest]
	assert.True(t, ingestType.CanRunAlone)
	require.NotEmpty(t, ingestType.Parameters)
	assert.Equal(t, "source_file", ingestType.Parameters[0].Name)
	assert.True(t, ingestType.Parameters[0].Required)

	routeType := byID[operations.StepIDRoute]
	assert.False(t, routeType.CanRunAlone)
	assert.Contains(t, routeType.Dependencies, operations.StepIDValidate)

	validateType := byID[operations.StepIDValidate]
	require.NotEmpty(t, validateType.Parameters)
	assert.ElementsMatch(t, []string{"off", "contract", "strict"}, validateType.Parameters[0].Options)
}
