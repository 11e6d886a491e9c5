package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorError(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	assert.Equal(t, "Invalid request format", err.Error())
}

func TestNew(t *testing.T) {
	err := New(http.StatusConflict, "CONFLICT", "Resource conflict")
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, "CONFLICT", err.ErrorCode)
	assert.Equal(t, "Resource conflict", err.Message)
	assert.Nil(t, err.Details)
}

func TestNewWithDetails(t *testing.T) {
	details := map[string]string{"sheet": "Q1"}
	err := NewWithDetails(http.StatusUnprocessableEntity, "SCHEMA_MISMATCH", "Sheet schemas do not match", details)
	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
	assert.Equal(t, details, err.Details)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err        *APIError
		wantStatus int
		wantCode   string
	}{
		{ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
		{ErrValidationFailed, http.StatusBadRequest, "VALIDATION_FAILED"},
		{ErrMissingParameter, http.StatusBadRequest, "MISSING_PARAMETER"},
		{ErrInvalidParameter, http.StatusBadRequest, "INVALID_PARAMETER"},
		{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrTemplateNotFound, http.StatusNotFound, "TEMPLATE_NOT_FOUND"},
		{ErrSourceNotFound, http.StatusNotFound, "SOURCE_NOT_FOUND"},
		{ErrPipelineNotFound, http.StatusNotFound, "PIPELINE_NOT_FOUND"},
		{ErrConflict, http.StatusConflict, "CONFLICT"},
		{ErrUnprocessableEntity, http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY"},
		{ErrHeaderResolution, http.StatusUnprocessableEntity, "HEADER_RESOLUTION_FAILED"},
		{ErrSchemaMismatch, http.StatusUnprocessableEntity, "SCHEMA_MISMATCH"},
		{ErrRateLimitExceeded, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{ErrInternalServer, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{ErrPipelineFailed, http.StatusInternalServerError, "PIPELINE_FAILED"},
		{ErrFileSystem, http.StatusInternalServerError, "FILESYSTEM_ERROR"},
		{ErrWebSocketUpgrade, http.StatusInternalServerError, "WEBSOCKET_UPGRADE_FAILED"},
		{ErrServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestInvalidRequestWithError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := InvalidRequestWithError(cause)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", err.ErrorCode)
	assert.Equal(t, cause.Error(), err.Details)
}

func TestErrValidation(t *testing.T) {
	err := ErrValidation("sheet_names", "must contain at least one sheet")
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)

	ve, ok := err.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "sheet_names", ve.Field)
	assert.Equal(t, "must contain at least one sheet", ve.Message)
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("operation run-42")
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, "operation run-42 not found", err.Message)
	assert.Equal(t, "operation run-42", err.Details)
}

func TestTemplateNotFoundError(t *testing.T) {
	err := TemplateNotFoundError("acme|statement.xlsx")
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, "TEMPLATE_NOT_FOUND", err.ErrorCode)
	assert.Equal(t, "acme|statement.xlsx", err.Details)
}

func TestDomainErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
	}{
		{"header resolution", HeaderResolutionError(errors.New("scan window exhausted")), http.StatusUnprocessableEntity, "HEADER_RESOLUTION_FAILED"},
		{"schema mismatch", SchemaMismatchError(errors.New("column count differs")), http.StatusUnprocessableEntity, "SCHEMA_MISMATCH"},
		{"pipeline execution", ErrPipelineExecution(errors.New("transform step failed")), http.StatusInternalServerError, "PIPELINE_EXECUTION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
			assert.NotNil(t, tt.err.Details)
		})
	}
}

func TestFileSystemError(t *testing.T) {
	err := FileSystemError("quarantine move", errors.New("permission denied"))
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, "FILESYSTEM_ERROR", err.ErrorCode)
	assert.Contains(t, err.Message, "quarantine move")
	assert.Equal(t, "permission denied", err.Details)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrNotFound)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrNotFound, resp.Error)
}

func TestNewValidationErrors(t *testing.T) {
	fields := []ValidationError{
		{Field: "provider", Message: "required"},
		{Field: "file", Message: "unsupported extension"},
	}
	err := NewValidationErrors(fields)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)

	ves, ok := err.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, ves.Errors, 2)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, ErrTemplateNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Success bool      `json:"success"`
		Error   *APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "TEMPLATE_NOT_FOUND", resp.Error.ErrorCode)
}

func TestSimpleConstructors(t *testing.T) {
	ve := NewValidationError("header_row must be positive")
	assert.Equal(t, http.StatusBadRequest, ve.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", ve.ErrorCode)

	ie := NewInternalError("template store unavailable")
	assert.Equal(t, http.StatusInternalServerError, ie.StatusCode)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", ie.ErrorCode)
}

func TestAPIErrorJSONRoundTrip(t *testing.T) {
	orig := NewWithDetails(http.StatusUnprocessableEntity, "SCHEMA_MISMATCH",
		"Sheet schemas do not match", "Q1 has 12 columns, Q2 has 14")

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded APIError
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig.StatusCode, decoded.StatusCode)
	assert.Equal(t, orig.ErrorCode, decoded.ErrorCode)
	assert.Equal(t, orig.Message, decoded.Message)
	assert.Equal(t, orig.Details, decoded.Details)
}

func TestAPIErrorRenderStatus(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/process", nil)
	w := httptest.NewRecorder()

	err := render.Render(w, r, ErrHeaderResolution)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "HEADER_RESOLUTION_FAILED", body["error_code"])
}

func TestAPIErrorWrappedByFmt(t *testing.T) {
	wrapped := fmt.Errorf("mapping stage: %w", ErrTemplateNotFound)

	var apiErr *APIError
	require.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, "TEMPLATE_NOT_FOUND", apiErr.ErrorCode)
}
