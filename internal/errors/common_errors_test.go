package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypeConstants(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{ErrTypeHeader, "HEADER"},
		{ErrTypeMapping, "MAPPING"},
		{ErrTypeNetwork, "NETWORK"},
		{ErrTypeParsing, "PARSING"},
		{ErrTypeStorage, "STORAGE"},
		{ErrTypeValidation, "VALIDATION"},
		{ErrTypeNotFound, "NOT_FOUND"},
		{ErrTypePermission, "PERMISSION"},
		{ErrTypeConfig, "CONFIG"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(tt.errType))
	}
}

func TestAppErrorError(t *testing.T) {
	withCause := NewAppError(ErrTypeParsing, "cell A3 is not numeric", errors.New("strconv: invalid syntax"))
	assert.Equal(t, "[PARSING] cell A3 is not numeric: strconv: invalid syntax", withCause.Error())

	withoutCause := NewAppError(ErrTypeHeader, "scan window exhausted", nil)
	assert.Equal(t, "[HEADER] scan window exhausted", withoutCause.Error())
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("template save failed", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, NewAppValidationError("bad row").Unwrap())
}

func TestAppErrorWithContext(t *testing.T) {
	err := NewMappingError("ambiguous column", nil).
		WithContext("column", "Trade Vol.").
		WithContext("candidates", 2)

	assert.Equal(t, "Trade Vol.", err.Context["column"])
	assert.Equal(t, 2, err.Context["candidates"])

	// WithContext must tolerate a nil map from a hand-built error.
	bare := &AppError{Type: ErrTypeConfig, Message: "missing contract path"}
	bare.WithContext("key", "contract_path")
	assert.Equal(t, "contract_path", bare.Context["key"])
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
	}{
		{"header", NewHeaderError("no header detected", cause), ErrTypeHeader},
		{"mapping", NewMappingError("unmapped column", cause), ErrTypeMapping},
		{"network", NewNetworkError("fetch failed", cause), ErrTypeNetwork},
		{"parsing", NewParsingError("bad xlsx", cause), ErrTypeParsing},
		{"storage", NewStorageError("write failed", cause), ErrTypeStorage},
		{"validation", NewAppValidationError("value out of range"), ErrTypeValidation},
		{"permission", NewPermissionError("quarantine dir not writable"), ErrTypePermission},
		{"config", NewConfigError("invalid threshold", cause), ErrTypeConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.NotEmpty(t, tt.err.Message)
			assert.NotNil(t, tt.err.Context)
		})
	}
}

func TestNewNotFoundErrorMessage(t *testing.T) {
	err := NewNotFoundError("mapping template")
	assert.Equal(t, ErrTypeNotFound, err.Type)
	assert.Equal(t, "mapping template not found", err.Message)
}

func TestAppErrorChain(t *testing.T) {
	root := errors.New("file is locked")
	mid := NewStorageError("cannot open source", root)
	top := fmt.Errorf("ingest stage: %w", mid)

	assert.True(t, errors.Is(top, root))

	var appErr *AppError
	require.True(t, errors.As(top, &appErr))
	assert.Equal(t, ErrTypeStorage, appErr.Type)
}
