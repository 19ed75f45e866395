// Package domain defines core types, interfaces, and errors for report extraction.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidRangeError indicates a date range whose start is after its end, or a
// non-positive chunk window. Not retryable.
type InvalidRangeError struct {
	Message string
}

func (e *InvalidRangeError) Error() string { return e.Message }

// TransportError indicates a network-level failure on an outbound call, or a
// download that did not complete with a success status.
type TransportError struct {
	Op         string // "create", "poll", "fetch", "campaigns"
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendRejectedError indicates the backend answered but flagged an error,
// returned a non-success status, or never produced a ready job.
type BackendRejectedError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *BackendRejectedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend rejected (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend rejected: %s", e.Op, e.Message)
}

// MalformedRowError indicates a downloaded row whose numeric fields could not
// be coerced. It invalidates the whole payload.
type MalformedRowError struct {
	Line  int // 1-based data line, header excluded
	Field string
	Value string
	Err   error
}

func (e *MalformedRowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed row %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed row %d: field %q value %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidRange creates an InvalidRangeError with a formatted message.
func ErrInvalidRange(format string, args ...interface{}) *InvalidRangeError {
	return &InvalidRangeError{Message: fmt.Sprintf(format, args...)}
}

// ErrBackendRejected creates a BackendRejectedError for op with a formatted message.
func ErrBackendRejected(op string, status int, format string, args ...interface{}) *BackendRejectedError {
	return &BackendRejectedError{Op: op, StatusCode: status, Message: fmt.Sprintf(format, args...)}
}
