package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Data types tracked by the manifest
const (
	DataTypeSourceFiles      = "source_files"
	DataTypeCleanedOutputs   = "cleaned_outputs"
	DataTypeArchivedFiles    = "archived_files"
	DataTypeQuarantinedFiles = "quarantined_files"
)

// DataInfo describes data available to the pipeline
type DataInfo struct {
	Type        string                 `json:"type"`
	Location    string                 `json:"location"`
	FileCount   int                    `json:"file_count"`
	FilePattern string                 `json:"file_pattern,omitempty"`
	TotalSize   int64                  `json:"total_size,omitempty"`
	Files       []string               `json:"files,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CreatedBy   string                 `json:"created_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// StepExecution records the execution of a single step
type StepExecution struct {
	StepID     string                 `json:"step_id"`
	StepName   string                 `json:"step_name"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time,omitempty"`
	Duration   string                 `json:"duration,omitempty"`
	Status     string                 `json:"status"`
	OutputData []string               `json:"output_data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// PipelineManifest tracks data availability and step execution for an
// operation. It is the source of truth for what data exists and which
// steps have run.
type PipelineManifest struct {
	mu             sync.RWMutex
	ID             string                 `json:"id"`
	OperationID    string                 `json:"operation_id"`
	StartTime      time.Time              `json:"start_time"`
	SourceFile     string                 `json:"source_file,omitempty"`
	Provider       string                 `json:"provider,omitempty"`
	Mode           string                 `json:"mode,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
	AvailableData  map[string]*DataInfo   `json:"available_data"`
	CompletedSteps []StepExecution        `json:"completed_steps"`
	Status         string                 `json:"status"`
	LastUpdated    time.Time              `json:"last_updated"`
	Error          string                 `json:"error,omitempty"`
}

// NewPipelineManifest creates a manifest for an operation
func NewPipelineManifest(operationID, sourceFile, provider string) *PipelineManifest {
	now := time.Now()
	return &PipelineManifest{
		ID:             fmt.Sprintf("manifest-%d", now.Unix()),
		OperationID:    operationID,
		StartTime:      now,
		SourceFile:     sourceFile,
		Provider:       provider,
		Config:         make(map[string]interface{}),
		AvailableData:  make(map[string]*DataInfo),
		CompletedSteps: []StepExecution{},
		Status:         "pending",
		LastUpdated:    now,
	}
}

// HasData checks if data of the given type is available
func (m *PipelineManifest) HasData(dataType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.AvailableData[dataType]
	return exists && info.FileCount > 0
}

// GetData returns data info for the given type
func (m *PipelineManifest) GetData(dataType string) (*DataInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.AvailableData[dataType]
	return info, exists
}

// AddData records data availability in the manifest
func (m *PipelineManifest) AddData(info *DataInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	m.AvailableData[info.Type] = info
	m.LastUpdated = time.Now()
}

// RecordStepStart records that a step has started. A retried step
// updates its existing entry instead of appending a duplicate.
func (m *PipelineManifest) RecordStepStart(stepID, stepName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.CompletedSteps {
		if m.CompletedSteps[i].StepID == stepID {
			m.CompletedSteps[i].Status = "running"
			m.CompletedSteps[i].StartTime = time.Now()
			m.CompletedSteps[i].Error = ""
			m.LastUpdated = time.Now()
			return
		}
	}

	m.CompletedSteps = append(m.CompletedSteps, StepExecution{
		StepID:    stepID,
		StepName:  stepName,
		StartTime: time.Now(),
		Status:    "running",
		Metadata:  make(map[string]interface{}),
	})
	m.Status = "running"
	m.LastUpdated = time.Now()
}

// RecordStepCompletion records a successful step execution
func (m *PipelineManifest) RecordStepCompletion(stepID string, outputData []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.CompletedSteps {
		if m.CompletedSteps[i].StepID == stepID {
			now := time.Now()
			m.CompletedSteps[i].EndTime = now
			m.CompletedSteps[i].Duration = now.Sub(m.CompletedSteps[i].StartTime).String()
			m.CompletedSteps[i].Status = "completed"
			m.CompletedSteps[i].OutputData = outputData
			m.LastUpdated = now
			return
		}
	}
}

// RecordStepFailure records a failed step execution
func (m *PipelineManifest) RecordStepFailure(stepID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.CompletedSteps {
		if m.CompletedSteps[i].StepID == stepID {
			now := time.Now()
			m.CompletedSteps[i].EndTime = now
			m.CompletedSteps[i].Duration = now.Sub(m.CompletedSteps[i].StartTime).String()
			m.CompletedSteps[i].Status = "failed"
			if err != nil {
				m.CompletedSteps[i].Error = err.Error()
			}
			m.Status = "failed"
			if err != nil {
				m.Error = err.Error()
			}
			m.LastUpdated = now
			return
		}
	}
}

// IsStepCompleted checks if a step has completed successfully
func (m *PipelineManifest) IsStepCompleted(stepID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, step := range m.CompletedSteps {
		if step.StepID == stepID && step.Status == "completed" {
			return true
		}
	}
	return false
}

// ScanDataDirectory scans a directory for files matching the pattern and
// records the result in the manifest
func (m *PipelineManifest) ScanDataDirectory(dataType, location, pattern string) error {
	if _, err := os.Stat(location); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", location)
	}

	matches, err := filepath.Glob(filepath.Join(location, pattern))
	if err != nil {
		return fmt.Errorf("scan directory %s: %w", location, err)
	}

	var files []string
	var totalSize int64
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, filepath.Base(match))
		totalSize += info.Size()
	}

	m.AddData(&DataInfo{
		Type:        dataType,
		Location:    location,
		FileCount:   len(files),
		FilePattern: pattern,
		TotalSize:   totalSize,
		Files:       files,
		CreatedAt:   time.Now(),
		CreatedBy:   "scan",
	})

	return nil
}

// SaveToFile persists the manifest as JSON
func (m *PipelineManifest) SaveToFile(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write manifest file: %w", err)
	}
	return nil
}

// LoadManifestFromFile loads a manifest from a JSON file
func LoadManifestFromFile(path string) (*PipelineManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest file: %w", err)
	}

	var manifest PipelineManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &manifest, nil
}

// Clone creates a deep copy of the manifest
func (m *PipelineManifest) Clone() (*PipelineManifest, error) {
	m.mu.RLock()
	data, err := json.Marshal(m)
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	var clone PipelineManifest
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &clone, nil
}

// GetProgress returns the overall completion percentage based on the
// number of completed steps
func (m *PipelineManifest) GetProgress() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := len(PipelineSteps())
	if total == 0 {
		return 0
	}

	completed := 0
	for _, step := range m.CompletedSteps {
		if step.Status == "completed" {
			completed++
		}
	}
	return float64(completed) / float64(total) * 100
}
