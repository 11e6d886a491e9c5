package services

import "errors"

// Sentinel errors shared across services. Handlers classify failures with
// errors.Is against these values when choosing a response status.
var (
	// ErrInvalidInput indicates the caller supplied malformed or missing input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOperationNotFound indicates the requested operation does not exist.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrJobNotFound indicates the requested queued job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoSourceFiles indicates a batch request matched no input files.
	ErrNoSourceFiles = errors.New("no source files found")

	// ErrServiceUnavailable indicates a dependency is not ready to serve.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
