package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredefinedPipelineErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		description string
	}{
		{
			name:        "ErrNoHeaderDetected",
			err:         ErrNoHeaderDetected,
			description: "should be header detection sentinel error",
		},
		{
			name:        "ErrSheetSchemaMismatch",
			err:         ErrSheetSchemaMismatch,
			description: "should be sheet schema mismatch sentinel error",
		},
		{
			name:        "ErrTemplateMissing",
			err:         ErrTemplateMissing,
			description: "should be template missing sentinel error",
		},
		{
			name:        "ErrContractMissing",
			err:         ErrContractMissing,
			description: "should be contract missing sentinel error",
		},
		{
			name:        "ErrContractViolated",
			err:         ErrContractViolated,
			description: "should be contract violated sentinel error",
		},
		{
			name:        "ErrUnsupportedFormat",
			err:         ErrUnsupportedFormat,
			description: "should be unsupported format sentinel error",
		},
		{
			name:        "ErrEmptySource",
			err:         ErrEmptySource,
			description: "should be empty source sentinel error",
		},
		{
			name:        "ErrRunInProgress",
			err:         ErrRunInProgress,
			description: "should be run in progress sentinel error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err, tt.description)
			assert.NotEmpty(t, tt.err.Error(), "error should have a message")
		})
	}
}

func TestProblemDetails_Render(t *testing.T) {
	tests := []struct {
		name       string
		problem    *ProblemDetails
		wantStatus int
	}{
		{
			name: "render 400 problem",
			problem: &ProblemDetails{
				Type:   "/errors/validation",
				Title:  "Validation Error",
				Status: http.StatusBadRequest,
				Detail: "Request validation failed",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "render 404 problem",
			problem: &ProblemDetails{
				Type:   "/errors/not-found",
				Title:  "Not Found",
				Status: http.StatusNotFound,
				Detail: "Resource not found",
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "render 500 problem",
			problem: &ProblemDetails{
				Type:   "/errors/internal",
				Title:  "Internal Server Error",
				Status: http.StatusInternalServerError,
				Detail: "An unexpected error occurred",
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", "/test", nil)

			err := tt.problem.Render(w, r)
			assert.NoError(t, err)
		})
	}
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		problem  *ProblemDetails
		wantKeys []string
	}{
		{
			name: "standard fields only",
			problem: NewProblemDetails(
				http.StatusNotFound,
				"/errors/template-not-found",
				"Template Not Found",
				"No saved mapping template exists for this source.",
				"/api/v1/templates/sales",
			),
			wantKeys: []string{"type", "title", "status", "detail", "instance"},
		},
		{
			name: "with extensions",
			problem: NewProblemDetails(
				http.StatusUnprocessableEntity,
				"/errors/file-quarantined",
				"File Quarantined",
				"Validation failed.",
				"/api/v1/process",
			).WithExtension("violation_count", 3).
				WithExtension("trace_id", "abc-123"),
			wantKeys: []string{"type", "title", "status", "detail", "instance", "violation_count", "trace_id"},
		},
		{
			name: "empty detail omitted",
			problem: NewProblemDetails(
				http.StatusInternalServerError,
				"/errors/internal",
				"Internal Server Error",
				"",
				"",
			),
			wantKeys: []string{"type", "title", "status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.problem)
			require.NoError(t, err)

			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &decoded))

			for _, key := range tt.wantKeys {
				assert.Contains(t, decoded, key)
			}

			if tt.problem.Detail == "" {
				assert.NotContains(t, decoded, "detail")
			}
			if tt.problem.Instance == "" {
				assert.NotContains(t, decoded, "instance")
			}
		})
	}
}

func TestNewQuarantinedProblem(t *testing.T) {
	completedAt := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name           string
		details        *QuarantineDetails
		traceID        string
		wantExtensions []string
	}{
		{
			name:           "without details",
			details:        nil,
			traceID:        "trace-1",
			wantExtensions: []string{"error_type", "trace_id"},
		},
		{
			name: "with full details",
			details: &QuarantineDetails{
				SourceFile:     "acme_jan.xlsx",
				FailureReason:  "contract validation failed",
				ViolationCount: 4,
				Violations: []string{
					"row 2, column customer_id: null in required field",
					"row 7, column quantity: cannot coerce 'abc' to number",
				},
				ErrorLogPath:   "/data/quarantine/acme_jan.error.log",
				QuarantinePath: "/data/quarantine/acme_jan.xlsx",
				CompletedAt:    &completedAt,
			},
			traceID: "trace-2",
			wantExtensions: []string{
				"error_type", "trace_id", "source_file", "failure_reason",
				"violation_count", "violations", "error_log_path",
				"quarantine_path", "completed_at",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := NewQuarantinedProblem(tt.details, tt.traceID)

			require.NotNil(t, problem)
			assert.Equal(t, http.StatusUnprocessableEntity, problem.Status)
			assert.Equal(t, "/errors/file-quarantined", problem.Type)
			assert.Equal(t, "File Quarantined", problem.Title)
			assert.Equal(t, "quarantined", problem.Extensions["error_type"])
			assert.Equal(t, tt.traceID, problem.Extensions["trace_id"])

			for _, ext := range tt.wantExtensions {
				assert.Contains(t, problem.Extensions, ext)
			}

			if tt.details != nil && tt.details.CompletedAt != nil {
				assert.Equal(t, "2024-03-15T10:30:00Z", problem.Extensions["completed_at"])
			}
		})
	}
}

func TestMapPipelineError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			name:       "no header detected",
			err:        ErrNoHeaderDetected,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "/errors/header-resolution-failed",
			wantCode:   "HEADER_RESOLUTION_FAILED",
		},
		{
			name:       "wrapped no header detected",
			err:        fmt.Errorf("resolving sheet North: %w", ErrNoHeaderDetected),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "/errors/header-resolution-failed",
			wantCode:   "HEADER_RESOLUTION_FAILED",
		},
		{
			name:       "sheet schema mismatch",
			err:        ErrSheetSchemaMismatch,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "/errors/schema-mismatch",
			wantCode:   "SCHEMA_MISMATCH",
		},
		{
			name:       "template missing",
			err:        ErrTemplateMissing,
			wantStatus: http.StatusNotFound,
			wantType:   "/errors/template-not-found",
			wantCode:   "TEMPLATE_NOT_FOUND",
		},
		{
			name:       "contract missing",
			err:        ErrContractMissing,
			wantStatus: http.StatusInternalServerError,
			wantType:   "/errors/contract-not-found",
			wantCode:   "CONTRACT_NOT_FOUND",
		},
		{
			name:       "contract violated",
			err:        ErrContractViolated,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "/errors/contract-violated",
			wantCode:   "CONTRACT_VIOLATED",
		},
		{
			name:       "unsupported format",
			err:        ErrUnsupportedFormat,
			wantStatus: http.StatusBadRequest,
			wantType:   "/errors/unsupported-format",
			wantCode:   "UNSUPPORTED_FORMAT",
		},
		{
			name:       "empty source",
			err:        ErrEmptySource,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "/errors/empty-source",
			wantCode:   "EMPTY_SOURCE",
		},
		{
			name:       "run in progress",
			err:        ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantType:   "/errors/run-in-progress",
			wantCode:   "RUN_IN_PROGRESS",
		},
		{
			name:       "template not found api error",
			err:        TemplateNotFoundError("sales_2024"),
			wantStatus: http.StatusNotFound,
			wantType:   "/errors/template-not-found",
			wantCode:   "TEMPLATE_NOT_FOUND",
		},
		{
			name:       "unknown error maps to internal",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "/errors/internal-error",
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := MapPipelineError(tt.err, "trace-xyz")
			require.NotNil(t, renderer)

			problem, ok := renderer.(*ProblemDetails)
			require.True(t, ok, "renderer should be ProblemDetails")

			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, tt.wantCode, problem.Extensions["error_code"])
			assert.Equal(t, "trace-xyz", problem.Extensions["trace_id"])
		})
	}
}

func TestMapPipelineError_RenderIntegration(t *testing.T) {
	t.Run("renders through chi render", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v1/process", nil)

		renderer := MapPipelineError(ErrNoHeaderDetected, "trace-render")
		err := render.Render(w, r, renderer)
		require.NoError(t, err)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
		assert.Equal(t, "/errors/header-resolution-failed", decoded["type"])
		assert.Equal(t, "trace-render", decoded["trace_id"])
	})
}
