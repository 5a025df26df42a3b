// Package errors provides centralized error definitions for lull. It defines
// the storage error taxonomy used by the persistence layer, a severity scale
// for deciding how loudly to log a failure, and classification helpers.
//
// # Storage Error Kinds
//
//   - KindUnreadable: the durable storage could not be read
//   - KindCorrupt: persisted content could not be parsed
//   - KindWriteFailure: a persist attempt failed
//
// # Usage
//
//	err := errors.NewStorageError(errors.KindWriteFailure, "save sessions", cause).
//	    WithPath("/var/lib/lull/sessions.json")
//
//	if errors.Is(err, errors.ErrCorrupt) { ... }
//	if errors.IsRetryable(err) { ... }
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityWarning:
//	    logger.Warn("storage problem", "error", err)
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnreadable indicates that durable storage exists but could not be read.
	ErrUnreadable = New("storage unreadable")
	// ErrCorrupt indicates that persisted content failed to parse.
	ErrCorrupt = New("storage corrupt")
	// ErrWriteFailure indicates that a persist attempt failed.
	ErrWriteFailure = New("storage write failed")
	// ErrLocked indicates that another process holds the storage lock.
	ErrLocked = New("storage locked by another process")
)

// Kind classifies a storage failure.
type Kind int

const (
	KindUnreadable Kind = iota
	KindCorrupt
	KindWriteFailure
)

// String returns the kind name used in log output.
func (k Kind) String() string {
	switch k {
	case KindUnreadable:
		return "unreadable"
	case KindCorrupt:
		return "corrupt"
	case KindWriteFailure:
		return "write_failure"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnreadable:
		return ErrUnreadable
	case KindCorrupt:
		return ErrCorrupt
	default:
		return ErrWriteFailure
	}
}

// ClassifiedError is implemented by errors that carry severity and retry hints.
type ClassifiedError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// StorageError
// -----------------------------------------------------------------------------

// StorageError represents a failure of the persistence layer.
//
// Example:
//
//	err := errors.NewStorageError(errors.KindCorrupt, "decode sessions", cause).WithPath(p)
//	fmt.Println(err) // "storage error [kind=corrupt, path=/x]: decode sessions: ..."
type StorageError struct {
	baseError
	Kind Kind
	Path string
}

// NewStorageError creates a StorageError. Severity and retryability are
// derived from the kind: write failures are retryable warnings, corrupt and
// unreadable storage are warnings.
func NewStorageError(kind Kind, message string, cause error) *StorageError {
	e := &StorageError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
		Kind: kind,
	}
	if kind == KindWriteFailure {
		e.retryable = true
	}
	return e
}

// WithPath adds the storage location to the error context.
func (e *StorageError) WithPath(path string) *StorageError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *StorageError) Error() string {
	parts := []string{"kind=" + e.Kind.String()}
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	prefix := fmt.Sprintf("storage error [%s]", strings.Join(parts, ", "))

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches the sentinel for the error's kind, any *StorageError target,
// and anything the cause matches.
func (e *StorageError) Is(target error) bool {
	if _, ok := target.(*StorageError); ok {
		return true
	}
	if target == e.Kind.sentinel() {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// RecordError
// -----------------------------------------------------------------------------

// RecordError describes a single malformed persisted record.
type RecordError struct {
	Index int
	Field string
	Err   error
}

// Error returns the formatted error message.
func (e *RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record %d: field %q: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation
// may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.IsRetryable()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't carry a classification.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.Severity()
	}
	return SeverityError
}

// KindOf returns the storage kind of err and whether err is a StorageError.
func KindOf(err error) (Kind, bool) {
	var storageErr *StorageError
	if As(err, &storageErr) {
		return storageErr.Kind, true
	}
	return 0, false
}
