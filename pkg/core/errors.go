// Package core provides the main TempoMem client, configuration loading, and
// the maintenance scheduler.
package core

import (
	"errors"
	"fmt"

	"github.com/kgraphio/tempomem-go/pkg/graph"
	"github.com/kgraphio/tempomem-go/pkg/memory"
	"github.com/kgraphio/tempomem-go/pkg/storage"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory event was not found.
	ErrNotFound = storage.ErrEventNotFound

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = memory.ErrInvalidInput

	// ErrUpstreamUnavailable indicates that the graph service could not
	// be reached.
	ErrUpstreamUnavailable = graph.ErrUpstreamUnavailable

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")
)

// EngineError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &EngineError{
//	    Op:  "RecordQuery",
//	    Err: ErrInvalidInput,
//	}
//	// Error() returns: "tempomem: RecordQuery: invalid input"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "tempomem: <Op>: <Err>"
func (e *EngineError) Error() string {
	return fmt.Sprintf("tempomem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewEngineError("RecordQuery", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "RecordQuery", "Evolve")
//   - err: The underlying error to wrap
//
// Returns a new EngineError, or nil if err is nil.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
