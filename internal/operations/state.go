package operations

import (
	"sync"
	"time"
)

// OperationStatusValue represents the status of an operation
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationStatus is an alias kept for readability in signatures
type OperationStatus = OperationStatusValue

// OperationState represents the runtime state of an entire operation
type OperationState struct {
	mu        sync.RWMutex           `json:"-"`
	ID        string                 `json:"id"`
	Status    OperationStatusValue   `json:"status"`
	StartTime time.Time              `json:"start_time"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Steps     map[string]*StepState  `json:"steps"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
	Error     error                  `json:"error,omitempty"`
}

// NewOperationState creates a new operation state
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:      id,
		Status:  OperationStatusPending,
		Steps:   make(map[string]*StepState),
		Context: make(map[string]interface{}),
		Config:  make(map[string]interface{}),
	}
}

// Start marks the operation as running
func (o *OperationState) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.StartTime = time.Now()
	o.Status = OperationStatusRunning
}

// Complete marks the operation as completed
func (o *OperationState) Complete() {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	o.EndTime = &now
	o.Status = OperationStatusCompleted
}

// Fail marks the operation as failed with the given error
func (o *OperationState) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	o.EndTime = &now
	o.Status = OperationStatusFailed
	o.Error = err
}

// Cancel marks the operation as cancelled
func (o *OperationState) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	o.EndTime = &now
	o.Status = OperationStatusCancelled
}

// GetStep returns the state of a specific step
func (o *OperationState) GetStep(id string) *StepState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.Steps[id]
}

// SetStep sets the state of a specific step
func (o *OperationState) SetStep(step *StepState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Steps[step.ID] = step
}

// GetContext returns a value from the operation context
func (o *OperationState) GetContext(key string) (interface{}, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	value, exists := o.Context[key]
	return value, exists
}

// SetContext sets a value in the operation context
func (o *OperationState) SetContext(key string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Context[key] = value
}

// GetConfig returns a value from the operation config
func (o *OperationState) GetConfig(key string) (interface{}, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	value, exists := o.Config[key]
	return value, exists
}

// SetConfig sets a value in the operation config
func (o *OperationState) SetConfig(key string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Config[key] = value
}

// Duration returns the duration of the operation
func (o *OperationState) Duration() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.EndTime != nil {
		return o.EndTime.Sub(o.StartTime)
	}
	if !o.StartTime.IsZero() {
		return time.Since(o.StartTime)
	}
	return 0
}

// GetActiveSteps returns all steps that are currently active
func (o *OperationState) GetActiveSteps() []*StepState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var active []*StepState
	for _, step := range o.Steps {
		if step.Status == StepStatusActive {
			active = append(active, step)
		}
	}
	return active
}

// GetCompletedSteps returns all steps that have completed
func (o *OperationState) GetCompletedSteps() []*StepState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var completed []*StepState
	for _, step := range o.Steps {
		if step.Status == StepStatusCompleted {
			completed = append(completed, step)
		}
	}
	return completed
}

// GetFailedSteps returns all steps that have failed
func (o *OperationState) GetFailedSteps() []*StepState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var failed []*StepState
	for _, step := range o.Steps {
		if step.Status == StepStatusFailed {
			failed = append(failed, step)
		}
	}
	return failed
}

// IsComplete returns true when no step is pending or active
func (o *OperationState) IsComplete() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, step := range o.Steps {
		if step.Status == StepStatusPending || step.Status == StepStatusActive {
			return false
		}
	}
	return true
}

// HasFailures returns true if any step has failed
func (o *OperationState) HasFailures() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, step := range o.Steps {
		if step.Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the operation state
func (o *OperationState) Clone() *OperationState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	clone := &OperationState{
		ID:        o.ID,
		Status:    o.Status,
		StartTime: o.StartTime,
		EndTime:   o.EndTime,
		Steps:     make(map[string]*StepState, len(o.Steps)),
		Context:   make(map[string]interface{}, len(o.Context)),
		Config:    make(map[string]interface{}, len(o.Config)),
		Error:     o.Error,
	}

	for id, step := range o.Steps {
		step.mu.RLock()
		stepCopy := &StepState{
			ID:        step.ID,
			Name:      step.Name,
			Status:    step.Status,
			StartTime: step.StartTime,
			EndTime:   step.EndTime,
			Progress:  step.Progress,
			Message:   step.Message,
			Error:     step.Error,
			Metadata:  make(map[string]interface{}, len(step.Metadata)),
		}
		for k, v := range step.Metadata {
			stepCopy.Metadata[k] = v
		}
		step.mu.RUnlock()
		clone.Steps[id] = stepCopy
	}

	for k, v := range o.Context {
		clone.Context[k] = v
	}
	for k, v := range o.Config {
		clone.Config[k] = v
	}

	return clone
}
