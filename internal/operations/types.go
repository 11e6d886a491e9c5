package operations

import (
	"time"

	"schemapipe/pkg/contracts/domain"
)

// Pipeline step identifiers.
const (
	StepIDIngest    = "ingest"
	StepIDResolve   = "resolve"
	StepIDMap       = "map"
	StepIDTransform = "transform"
	StepIDValidate  = "validate"
	StepIDRoute     = "route"
)

// Human-readable step names.
const (
	StepNameIngest    = "Source Ingestion"
	StepNameResolve   = "Header Resolution"
	StepNameMap       = "Schema Mapping"
	StepNameTransform = "Reshape & Cleanup"
	StepNameValidate  = "Contract Validation"
	StepNameRoute     = "Outcome Routing"
)

// PipelineSteps returns the pipeline's step IDs in execution order.
func PipelineSteps() []string {
	return []string{
		StepIDIngest,
		StepIDResolve,
		StepIDMap,
		StepIDTransform,
		StepIDValidate,
		StepIDRoute,
	}
}

// Request configuration keys in operation state.
const (
	ContextKeySourceFile      = "source_file"
	ContextKeyProvider        = "provider"
	ContextKeyTemplateKey     = "template_key"
	ContextKeyValidationLevel = "validation_level"
	ContextKeyMode            = "mode"
)

// Artifact keys in operation state. Each step reads the artifacts of its
// predecessors and publishes its own under these keys.
const (
	ContextKeyTemplate        = "template"
	ContextKeyRawTables       = "raw_tables"
	ContextKeyHeaderSpecs     = "header_specs"
	ContextKeySheets          = "sheets"
	ContextKeyMapping         = "mapping"
	ContextKeyTransformResult = "transform_result"
	ContextKeyValidation      = "validation_result"
	ContextKeyOutcome         = "outcome_record"
)

// Operation modes.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// StepAll selects every registered step when used in place of a step ID.
const StepAll = "all"

// WebSocket event types, matching the frontend's expected format.
const (
	EventTypeOperationStatus  = "operation:status"
	EventTypePipelineProgress = "operation:progress"
	EventTypePipelineComplete = "operation:complete"
	EventTypeOperationError   = "operation:error"
	EventTypePipelineReset    = "operation:reset"
)

// Default timeouts.
const (
	DefaultStepTimeout      = 10 * time.Minute
	DefaultIngestTimeout    = 5 * time.Minute
	DefaultResolveTimeout   = 1 * time.Minute
	DefaultMapTimeout       = 1 * time.Minute
	DefaultTransformTimeout = 5 * time.Minute
	DefaultValidateTimeout  = 2 * time.Minute
	DefaultRouteTimeout     = 2 * time.Minute
)

// ExecutionMode defines how steps are executed
type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
	ExecutionModeParallel   ExecutionMode = "parallel"
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest represents a request to execute an operation
type OperationRequest struct {
	ID          string                 `json:"id"`
	Mode        string                 `json:"mode"`
	SourceFile  string                 `json:"source_file,omitempty"`
	Provider    string                 `json:"provider,omitempty"`
	TemplateKey string                 `json:"template_key,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// OperationResponse represents the response from an operation execution.
// Outcome is set when the route step completed and the file reached a
// terminal state.
type OperationResponse struct {
	ID       string                `json:"id"`
	Status   OperationStatusValue  `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Outcome  *domain.OutcomeRecord `json:"outcome,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// ProgressUpdate represents a progress update from a step
type ProgressUpdate struct {
	StepID   string                 `json:"step_id"`
	Progress float64                `json:"progress"`
	Message  string                 `json:"message"`
	ETA      string                 `json:"eta,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// OperationType represents an available operation type
type OperationType struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Dependencies []string              `json:"dependencies"`
	CanRunAlone  bool                  `json:"can_run_alone"`
	Parameters   []ParameterDefinition `json:"parameters"`
}

// ParameterDefinition defines a parameter for an operation type
type ParameterDefinition struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // string, number, select, boolean
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"` // For select type
}
