package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"schemapipe/internal/config"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents an async operation job
type Job struct {
	ID          string                 `json:"id"`
	OperationID string                 `json:"operation_id"`
	StepID      string                 `json:"step_id"`
	StepName    string                 `json:"step_name"`
	Status      JobStatus              `json:"status"`
	Progress    int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Request     *OperationRequest      `json:"request,omitempty"`
}

// JobStore interface for job persistence
type JobStore interface {
	// Job operations
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error

	// Manifest operations
	CreateManifest(manifest *PipelineManifest) error
	GetManifest(id string) (*PipelineManifest, error)
	UpdateManifest(manifest *PipelineManifest) error
	GetManifestByOperationID(operationID string) (*PipelineManifest, error)
}

// JobFilter for querying jobs
type JobFilter struct {
	Status      JobStatus
	OperationID string
	StepID      string
	Since       time.Time
	Limit       int
}

// JobQueue manages async job execution across a bounded worker pool
type JobQueue struct {
	mu       sync.RWMutex
	jobs     chan *Job
	workers  int
	wg       sync.WaitGroup
	store    JobStore
	manager  *Manager
	paths    *config.Paths
	logger   *slog.Logger
	shutdown chan struct{}
	active   map[string]*Job // Currently executing jobs
}

// NewJobQueue creates a new job queue
func NewJobQueue(workers int, store JobStore, manager *Manager, paths *config.Paths, logger *slog.Logger) *JobQueue {
	if workers <= 0 {
		workers = 4 // Default number of workers
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:     make(chan *Job, workers*2), // Buffer size = 2x workers
		workers:  workers,
		store:    store,
		manager:  manager,
		paths:    paths,
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		active:   make(map[string]*Job),
	}
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))

	// Start worker goroutines
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	// Start job recovery (for jobs that were running when system stopped)
	go q.recoverJobs(ctx)
}

// Stop gracefully shuts down the job queue
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")

	// Signal shutdown
	close(q.shutdown)

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Enqueue adds a job to the queue
func (q *JobQueue) Enqueue(job *Job) error {
	// Set initial status
	job.Status = JobStatusPending
	job.CreatedAt = time.Now()

	// Save to store
	if err := q.store.CreateJob(job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	// Initialize operation in broadcaster
	broadcaster := q.manager.GetBroadcaster()
	var steps []string
	if job.StepID == "" || job.StepID == StepAll {
		steps = PipelineSteps()
	} else {
		steps = []string{job.StepID}
	}
	broadcaster.CreateOperation(job.OperationID, steps)

	// Add to queue
	select {
	case q.jobs <- job:
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("step_id", job.StepID))
		return nil
	default:
		// Queue is full, mark as failed
		job.Status = JobStatusFailed
		job.Error = "job queue is full"
		q.store.UpdateJob(job)
		return fmt.Errorf("job queue is full")
	}
}

// GetJob retrieves a job by ID. The store snapshot is preferred because
// active jobs are mutated by their worker while they run.
func (q *JobQueue) GetJob(id string) (*Job, error) {
	if job, err := q.store.GetJob(id); err == nil {
		return job, nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if activeJob, ok := q.active[id]; ok {
		jobCopy := *activeJob
		return &jobCopy, nil
	}
	return nil, fmt.Errorf("job %s not found", id)
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	job, err := q.GetJob(id)
	if err != nil {
		return err
	}

	if job.Status != JobStatusRunning && job.Status != JobStatusPending {
		return fmt.Errorf("job %s cannot be cancelled (status: %s)", id, job.Status)
	}

	// Update status
	job.Status = JobStatusCancelled
	now := time.Now()
	job.CompletedAt = &now

	return q.store.UpdateJob(job)
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// worker processes jobs from the queue
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case job := <-q.jobs:
			q.processJob(ctx, job, logger)
		}
	}
}

// processJob executes a single job
func (q *JobQueue) processJob(ctx context.Context, job *Job, logger *slog.Logger) {
	// Add trace ID to context
	if job.Metadata != nil {
		if traceID, ok := job.Metadata["trace_id"].(string); ok {
			ctx = context.WithValue(ctx, middleware.RequestIDKey, traceID)
		}
	}

	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("step_id", job.StepID),
	)

	logger.Info("processing job started")

	broadcaster := q.manager.GetBroadcaster()

	// Mark job as active
	q.mu.Lock()
	q.active[job.ID] = job
	q.mu.Unlock()

	defer func() {
		// Recover from panics so one bad file never takes down the server
		if r := recover(); r != nil {
			logger.Error("job processing panicked",
				slog.Any("panic", r),
				slog.String("job_id", job.ID))

			job.Status = JobStatusFailed
			job.Error = fmt.Sprintf("job processing panicked: %v", r)
			job.Message = "Internal error occurred"
			completedAt := time.Now()
			job.CompletedAt = &completedAt

			if err := q.store.UpdateJob(job); err != nil {
				logger.Error("failed to update job after panic", slog.String("error", err.Error()))
			}
		}

		// Remove from active jobs
		q.mu.Lock()
		delete(q.active, job.ID)
		q.mu.Unlock()
	}()

	// Update job status to running
	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	job.Progress = 0
	job.Message = "Job started"

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job status", slog.String("error", err.Error()))
	}

	// Mark operation as started through broadcaster
	broadcaster.StartOperation(job.OperationID)

	// Get or create manifest
	manifest, err := q.getOrCreateManifest(job)
	if err != nil {
		q.handleJobError(job, err, logger)
		return
	}

	// Check if we're running a single step or the full pipeline
	if job.StepID != "" && job.StepID != StepAll {
		if err := q.executeSingleStep(ctx, job, manifest, nil, logger); err != nil {
			q.handleJobError(job, err, logger)
			return
		}
	} else {
		if err := q.executeFullPipeline(ctx, job, manifest, logger); err != nil {
			q.handleJobError(job, err, logger)
			return
		}
	}

	// Mark job as completed
	job.Status = JobStatusCompleted
	job.Progress = 100
	job.Message = "Job completed successfully"
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job completion", slog.String("error", err.Error()))
	}

	// Broadcast operation completion through the centralized broadcaster
	broadcaster.CompleteOperation(job.OperationID, "Operation completed successfully")

	logger.Info("processing job completed")
}

// executeSingleStep runs a single step. A non-nil state threads artifacts
// from earlier steps of the same operation into this one; passing nil
// starts from a fresh state configured from the job request.
func (q *JobQueue) executeSingleStep(ctx context.Context, job *Job, manifest *PipelineManifest, state *OperationState, logger *slog.Logger) error {
	step, err := q.manager.GetRegistry().Get(job.StepID)
	if err != nil {
		return fmt.Errorf("step not found: %w", err)
	}

	logger.Debug("checking if step can run",
		slog.String("step_id", job.StepID),
		slog.String("operation_id", job.OperationID),
		slog.String("request_id", middleware.GetReqID(ctx)))

	canRun := step.CanRun(manifest)

	logger.Info("step CanRun check completed",
		slog.String("step_id", job.StepID),
		slog.Bool("can_run", canRun),
		slog.String("request_id", middleware.GetReqID(ctx)))

	if !canRun {
		return fmt.Errorf("step %s cannot run: required inputs not available", job.StepID)
	}

	// Update job progress
	job.Progress = 10
	job.Message = fmt.Sprintf("Starting %s", step.Name())
	q.store.UpdateJob(job)

	broadcaster := q.manager.GetBroadcaster()
	broadcaster.UpdateStepProgress(job.OperationID, step.ID(), 10, fmt.Sprintf("Starting %s", step.Name()))

	// Record step start in manifest
	manifest.RecordStepStart(step.ID(), step.Name())

	if state == nil {
		state = NewOperationState(job.OperationID)
		applyRequest(state, job.Request)
	}

	stepState := state.GetStep(step.ID())
	if stepState == nil {
		stepState = NewStepState(step.ID(), step.Name())
		state.SetStep(stepState)
	}
	stepState.Start()

	logger.Info("executing step", slog.String("step", step.ID()))

	if err := step.Execute(ctx, state); err != nil {
		stepState.Fail(err)
		manifest.RecordStepFailure(step.ID(), err)
		q.store.UpdateManifest(manifest)
		broadcaster.FailStep(job.OperationID, step.ID(), err)
		return fmt.Errorf("step %s failed: %w", step.ID(), err)
	}

	stepState.Complete()

	// Update manifest with step outputs
	outputs := step.ProducedOutputs()
	outputTypes := make([]string, len(outputs))
	for i, output := range outputs {
		outputTypes[i] = output.Type
		// Scan directory for produced files
		manifest.ScanDataDirectory(output.Type, output.Location, output.Pattern)
	}

	manifest.RecordStepCompletion(step.ID(), outputTypes)
	q.store.UpdateManifest(manifest)

	// Update job progress
	job.Progress = 90
	job.Message = fmt.Sprintf("Completed %s", step.Name())
	q.store.UpdateJob(job)

	broadcaster.CompleteStep(job.OperationID, step.ID(), fmt.Sprintf("Completed %s", step.Name()))

	return nil
}

// executeFullPipeline runs all steps in sequence
func (q *JobQueue) executeFullPipeline(ctx context.Context, job *Job, manifest *PipelineManifest, logger *slog.Logger) error {
	// Get all steps in dependency order
	steps, err := q.manager.GetRegistry().GetDependencyOrder()
	if err != nil {
		return fmt.Errorf("resolve step order: %w", err)
	}

	// One state carries the artifacts from step to step
	state := NewOperationState(job.OperationID)
	applyRequest(state, job.Request)

	totalSteps := len(steps)

	for i, step := range steps {
		// Check if step can run
		if !step.CanRun(manifest) {
			logger.Info("skipping step - requirements not met",
				slog.String("step", step.ID()))
			continue
		}

		// Update job progress
		progress := (i * 90) / totalSteps
		job.Progress = progress
		job.Message = fmt.Sprintf("Running %s (%d/%d)", step.Name(), i+1, totalSteps)
		q.store.UpdateJob(job)

		// Execute step (reuse single step logic)
		stepJob := *job
		stepJob.StepID = step.ID()
		stepJob.StepName = step.Name()

		if err := q.executeSingleStep(ctx, &stepJob, manifest, state, logger); err != nil {
			return err
		}
	}

	return nil
}

// applyRequest copies request fields into the operation state config
func applyRequest(state *OperationState, req *OperationRequest) {
	if req == nil {
		return
	}
	if req.SourceFile != "" {
		state.SetConfig(ContextKeySourceFile, req.SourceFile)
	}
	if req.Provider != "" {
		state.SetConfig(ContextKeyProvider, req.Provider)
	}
	if req.TemplateKey != "" {
		state.SetConfig(ContextKeyTemplateKey, req.TemplateKey)
	}
	if req.Mode != "" {
		state.SetConfig(ContextKeyMode, req.Mode)
	}
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}
}

// handleJobError handles job execution errors
func (q *JobQueue) handleJobError(job *Job, err error, logger *slog.Logger) {
	logger.Error("job failed", slog.String("error", err.Error()))

	job.Status = JobStatusFailed
	job.Error = err.Error()
	job.Message = "Job failed"
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if updateErr := q.store.UpdateJob(job); updateErr != nil {
		logger.Error("failed to update job error", slog.String("error", updateErr.Error()))
	}

	// Broadcast operation failure through the centralized broadcaster
	broadcaster := q.manager.GetBroadcaster()
	broadcaster.FailOperation(job.OperationID, err)
}

// getOrCreateManifest gets the existing manifest or creates a new one
func (q *JobQueue) getOrCreateManifest(job *Job) (*PipelineManifest, error) {
	// Try to get existing manifest
	manifest, err := q.store.GetManifestByOperationID(job.OperationID)
	if err == nil && manifest != nil {
		return manifest, nil
	}

	sourceFile := ""
	provider := ""
	if job.Request != nil {
		sourceFile = job.Request.SourceFile
		provider = job.Request.Provider
	}

	manifest = NewPipelineManifest(job.OperationID, sourceFile, provider)

	// Scan existing data directories so resumed operations see prior data
	if q.paths != nil {
		manifest.ScanDataDirectory(DataTypeSourceFiles, q.paths.InputDir, "*.*")
		manifest.ScanDataDirectory(DataTypeCleanedOutputs, q.paths.OutputDir, "*_clean.*")
		manifest.ScanDataDirectory(DataTypeArchivedFiles, q.paths.ArchiveDir, "*.*")
		manifest.ScanDataDirectory(DataTypeQuarantinedFiles, q.paths.QuarantineDir, "*.*")
	}

	if err := q.store.CreateManifest(manifest); err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}

	return manifest, nil
}

// recoverJobs re-queues jobs that were running when the system stopped
func (q *JobQueue) recoverJobs(ctx context.Context) {
	q.logger.Info("recovering pending and running jobs")

	// Find jobs that were running or pending
	jobs, err := q.store.ListJobs(JobFilter{
		Status: JobStatusRunning,
	})
	if err != nil {
		q.logger.Error("failed to recover running jobs", slog.String("error", err.Error()))
		return
	}

	pendingJobs, err := q.store.ListJobs(JobFilter{
		Status: JobStatusPending,
	})
	if err != nil {
		q.logger.Error("failed to recover pending jobs", slog.String("error", err.Error()))
	} else {
		jobs = append(jobs, pendingJobs...)
	}

	// Re-queue recovered jobs
	for _, job := range jobs {
		// Reset running jobs to pending
		if job.Status == JobStatusRunning {
			job.Status = JobStatusPending
			job.StartedAt = nil
			job.Progress = 0
			q.store.UpdateJob(job)
		}

		select {
		case q.jobs <- job:
			q.logger.Info("recovered job",
				slog.String("job_id", job.ID),
				slog.String("status", string(job.Status)))
		default:
			q.logger.Warn("could not recover job - queue full",
				slog.String("job_id", job.ID))
		}
	}
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	q.mu.RLock()
	activeCount := len(q.active)
	q.mu.RUnlock()

	stats := map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
	}

	// Stores that track per-status counts contribute them to the stats
	// endpoint.
	if counter, ok := q.store.(interface{ GetStats() map[string]int }); ok {
		stats["jobs"] = counter.GetStats()
	}
	return stats
}
