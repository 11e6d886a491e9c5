package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Pipeline-specific errors (using errors package for sentinel errors)
var (
	ErrNoHeaderDetected    = errors.New("no plausible header row detected")
	ErrSheetSchemaMismatch = errors.New("sheet schema mismatch")
	ErrTemplateMissing     = errors.New("template not found")
	ErrContractMissing     = errors.New("contract not found")
	ErrContractViolated    = errors.New("contract validation failed")
	ErrUnsupportedFormat   = errors.New("unsupported source format")
	ErrEmptySource         = errors.New("source contains no data")
	ErrRunInProgress       = errors.New("run already in progress")
)

// QuarantineDetails provides additional context for quarantined files
type QuarantineDetails struct {
	SourceFile     string     `json:"source_file,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	ViolationCount int        `json:"violation_count,omitempty"`
	Violations     []string   `json:"violations,omitempty"`
	ErrorLogPath   string     `json:"error_log_path,omitempty"`
	QuarantinePath string     `json:"quarantine_path,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	// Add standard fields
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	// Add extensions
	for k, v := range pd.Extensions {
		data[k] = v
	}

	// Use standard JSON marshaling
	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewQuarantinedProblem creates an enhanced error for files routed to quarantine
func NewQuarantinedProblem(details *QuarantineDetails, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusUnprocessableEntity,
		"/errors/file-quarantined",
		"File Quarantined",
		"The file failed contract validation and was moved to quarantine. Review the error log for every violation.",
		fmt.Sprintf("/api/v1/process#%s", traceID),
	)

	problem.WithExtension("error_type", "quarantined").
		WithExtension("trace_id", traceID)

	if details != nil {
		if details.SourceFile != "" {
			problem.WithExtension("source_file", details.SourceFile)
		}
		if details.FailureReason != "" {
			problem.WithExtension("failure_reason", details.FailureReason)
		}
		if details.ViolationCount > 0 {
			problem.WithExtension("violation_count", details.ViolationCount)
		}
		if len(details.Violations) > 0 {
			problem.WithExtension("violations", details.Violations)
		}
		if details.ErrorLogPath != "" {
			problem.WithExtension("error_log_path", details.ErrorLogPath)
		}
		if details.QuarantinePath != "" {
			problem.WithExtension("quarantine_path", details.QuarantinePath)
		}
		if details.CompletedAt != nil {
			problem.WithExtension("completed_at", details.CompletedAt.Format("2006-01-02T15:04:05Z"))
		}
	}

	return problem
}

// MapPipelineError maps domain errors to HTTP problem details
func MapPipelineError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/v1/process#trace-%s", traceID)

	// Check if it's an APIError from errors.go
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode == "TEMPLATE_NOT_FOUND" {
			return NewProblemDetails(
				http.StatusNotFound,
				"/errors/template-not-found",
				"Template Not Found",
				"No saved mapping template exists for this source. Run the mapper first or save a template.",
				instance,
			).WithExtension("trace_id", traceID).
				WithExtension("error_code", "TEMPLATE_NOT_FOUND")
		}
	}

	switch {
	case errors.Is(err, ErrNoHeaderDetected):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/header-resolution-failed",
			"Header Resolution Failed",
			"No plausible header row was detected in the scanned window. Set an explicit header row in the template.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "HEADER_RESOLUTION_FAILED")

	case errors.Is(err, ErrSheetSchemaMismatch):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/schema-mismatch",
			"Sheet Schema Mismatch",
			"The selected sheets resolve to different column sets and cannot be combined.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "SCHEMA_MISMATCH")

	case errors.Is(err, ErrTemplateMissing):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/template-not-found",
			"Template Not Found",
			"No saved mapping template exists for this source.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "TEMPLATE_NOT_FOUND")

	case errors.Is(err, ErrContractMissing):
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/contract-not-found",
			"Contract Not Found",
			"The canonical schema contract could not be loaded.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "CONTRACT_NOT_FOUND")

	case errors.Is(err, ErrContractViolated):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/contract-violated",
			"Contract Validation Failed",
			"The transformed table violates the canonical schema contract.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "CONTRACT_VIOLATED")

	case errors.Is(err, ErrUnsupportedFormat):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/unsupported-format",
			"Unsupported Source Format",
			"Only .xlsx, .xls and .csv sources are supported.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "UNSUPPORTED_FORMAT")

	case errors.Is(err, ErrEmptySource):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/empty-source",
			"Empty Source",
			"The source file contains no data rows after cleanup.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "EMPTY_SOURCE")

	case errors.Is(err, ErrRunInProgress):
		return NewProblemDetails(
			http.StatusConflict,
			"/errors/run-in-progress",
			"Run Already In Progress",
			"A pipeline run for this source is already executing. Wait for it to finish.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RUN_IN_PROGRESS")

	default:
		// Generic error
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
