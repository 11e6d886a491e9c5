package operations

import (
	"fmt"
	"sync"
	"time"
)

// MemoryJobStore keeps jobs and run manifests in process memory. Jobs are
// stored by value: callers get snapshots back, and their later mutations
// only land in the store through UpdateJob.
type MemoryJobStore struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	manifests map[string]*PipelineManifest
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:      make(map[string]*Job),
		manifests: make(map[string]*PipelineManifest),
	}
}

// CreateJob stores a snapshot of the job, rejecting duplicate IDs.
func (s *MemoryJobStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = snapshot(job)
	return nil
}

// GetJob returns a snapshot of the job with the given ID.
func (s *MemoryJobStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return snapshot(job), nil
}

// UpdateJob replaces the stored snapshot of an existing job.
func (s *MemoryJobStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("job %s not found", job.ID)
	}
	s.jobs[job.ID] = snapshot(job)
	return nil
}

// ListJobs returns snapshots of jobs matching the filter, up to
// filter.Limit when it is positive. Map iteration order applies, so the
// result order is unspecified.
func (s *MemoryJobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Job
	for _, job := range s.jobs {
		if !matchesFilter(job, filter) {
			continue
		}
		result = append(result, snapshot(job))
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// DeleteJob removes a job from the store.
func (s *MemoryJobStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job %s not found", id)
	}
	delete(s.jobs, id)
	return nil
}

// CreateManifest stores a run manifest, rejecting duplicate IDs.
func (s *MemoryJobStore) CreateManifest(manifest *PipelineManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.manifests[manifest.ID]; exists {
		return fmt.Errorf("manifest %s already exists", manifest.ID)
	}
	s.manifests[manifest.ID] = manifest
	return nil
}

// GetManifest returns a clone of the manifest with the given ID.
func (s *MemoryJobStore) GetManifest(id string) (*PipelineManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, exists := s.manifests[id]
	if !exists {
		return nil, fmt.Errorf("manifest %s not found", id)
	}
	return manifest.Clone()
}

// UpdateManifest replaces an existing manifest.
func (s *MemoryJobStore) UpdateManifest(manifest *PipelineManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.manifests[manifest.ID]; !exists {
		return fmt.Errorf("manifest %s not found", manifest.ID)
	}
	s.manifests[manifest.ID] = manifest
	return nil
}

// GetManifestByOperationID returns a clone of the manifest recorded for
// the given operation run.
func (s *MemoryJobStore) GetManifestByOperationID(operationID string) (*PipelineManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, manifest := range s.manifests {
		if manifest.OperationID == operationID {
			return manifest.Clone()
		}
	}
	return nil, fmt.Errorf("manifest for operation %s not found", operationID)
}

// CleanupOldJobs removes terminal jobs created before now-olderThan and
// reports how many were deleted. Pending and running jobs are never
// touched.
func (s *MemoryJobStore) CleanupOldJobs(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for id, job := range s.jobs {
		if isTerminalStatus(job.Status) && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

// GetStats reports job counts by status plus store totals.
func (s *MemoryJobStore) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{
		"total_jobs":      len(s.jobs),
		"total_manifests": len(s.manifests),
	}
	for _, status := range []JobStatus{
		JobStatusPending, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled,
	} {
		stats[string(status)] = 0
	}
	for _, job := range s.jobs {
		stats[string(job.Status)]++
	}
	return stats
}

func snapshot(job *Job) *Job {
	copied := *job
	return &copied
}

func matchesFilter(job *Job, filter JobFilter) bool {
	if filter.Status != "" && job.Status != filter.Status {
		return false
	}
	if filter.OperationID != "" && job.OperationID != filter.OperationID {
		return false
	}
	if filter.StepID != "" && job.StepID != filter.StepID {
		return false
	}
	if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
		return false
	}
	return true
}

func isTerminalStatus(status JobStatus) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
