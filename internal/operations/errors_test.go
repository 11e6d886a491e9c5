package operations

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationError_Error(t *testing.T) {
	withStep := NewValidationError(StepIDIngest, "missing source_file in operation config")
	assert.Equal(t, "[validation] ingest: missing source_file in operation config", withStep.Error())

	withoutStep := NewFatalError("registry is empty", nil)
	assert.Equal(t, "[fatal] registry is empty", withoutStep.Error())
}

func TestOperationError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewExecutionError(StepIDRoute, cause, false)

	assert.ErrorIs(t, err, cause)
}

func TestNewTimeoutError(t *testing.T) {
	err := NewTimeoutError(StepIDTransform, "5m0s")

	assert.Equal(t, ErrorTypeTimeout, err.Type)
	assert.True(t, err.Retryable)
	assert.Equal(t, "5m0s", err.Context["timeout"])
	assert.Contains(t, err.Error(), "timed out after 5m0s")
}

func TestNewDependencyError(t *testing.T) {
	err := NewDependencyError(StepIDMap, StepIDResolve, "dependency resolve has not completed")

	assert.Equal(t, ErrorTypeDependency, err.Type)
	assert.Equal(t, StepIDResolve, err.Context["depends_on"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTimeoutError(StepIDIngest, "1m")))
	assert.True(t, IsRetryable(NewExecutionError(StepIDIngest, assert.AnError, true)))
	assert.False(t, IsRetryable(NewExecutionError(StepIDIngest, assert.AnError, false)))
	assert.False(t, IsRetryable(NewValidationError(StepIDIngest, "bad input")))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))

	wrapped := fmt.Errorf("attempt 1: %w", NewTimeoutError(StepIDIngest, "1m"))
	assert.True(t, IsRetryable(wrapped))
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeValidation, GetErrorType(NewValidationError(StepIDMap, "x")))
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(NewCancellationError(StepIDMap)))
	assert.Equal(t, ErrorTypeExecution, GetErrorType(errors.New("plain")))
}

func TestWrapError_PlainError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(cause, StepIDIngest, "step execution failed")

	assert.Equal(t, ErrorTypeExecution, err.Type)
	assert.Equal(t, StepIDIngest, err.Step)
	assert.Equal(t, "step execution failed", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestWrapError_EnhancesOperationError(t *testing.T) {
	inner := NewValidationError("", "missing source_file in operation config")
	err := WrapError(inner, StepIDIngest, "step execution failed")

	assert.Same(t, inner, err, "existing operation errors are enhanced, not double-wrapped")
	assert.Equal(t, StepIDIngest, err.Step)
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Contains(t, err.Message, "step execution failed: ")
}

func TestWrapError_KeepsExistingStep(t *testing.T) {
	inner := NewCancellationError(StepIDResolve)
	err := WrapError(inner, StepIDMap, "")

	assert.Equal(t, StepIDResolve, err.Step)
	assert.Equal(t, "Operation was cancelled", err.Message)
}

func TestErrorList(t *testing.T) {
	var list ErrorList
	assert.False(t, list.HasErrors())
	assert.Equal(t, "no errors", list.Error())

	list.Add(NewValidationError(StepIDIngest, "first"))
	assert.True(t, list.HasErrors())
	assert.Equal(t, "[validation] ingest: first", list.Error())

	list.Add(NewValidationError(StepIDRoute, "second"))
	list.Add(NewValidationError(StepIDIngest, "third"))
	assert.Contains(t, list.Error(), "(and 2 more errors)")

	require.Len(t, list.GetByStep(StepIDIngest), 2)
	require.Len(t, list.GetByStep(StepIDRoute), 1)
	assert.Empty(t, list.GetByStep(StepIDValidate))
}
