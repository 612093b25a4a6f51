// Package errors provides centralized error definitions and error handling
// utilities for the fanout codebase. It defines domain-specific errors,
// sentinel errors, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - UnitError: errors tied to a single work unit's lifecycle
//   - QueueError: errors from the work-unit queue
//   - MergeError: errors from result merging
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewUnitError("dispatch failed", cause).WithUnitID("scan-auth")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrDuplicateUnit) { ... }
//
//	var unitErr *errors.UnitError
//	if errors.As(err, &unitErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
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
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
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
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Queue-related sentinel errors
var (
	// ErrDuplicateUnit indicates a unit id was enqueued more than once in a run.
	ErrDuplicateUnit = New("duplicate unit id")
	// ErrUnknownUnit indicates that a unit id is not present in the queue.
	ErrUnknownUnit = New("unknown unit id")
	// ErrInvalidTransition indicates an illegal unit status transition.
	ErrInvalidTransition = New("invalid status transition")
	// ErrQueueClosed indicates the queue no longer accepts units.
	ErrQueueClosed = New("queue closed to new units")
)

// Run-related sentinel errors
var (
	// ErrRunAborted indicates the run was terminated by the circuit breaker
	// or an external abort decision.
	ErrRunAborted = New("run aborted")
	// ErrRunNotPaused indicates a resume decision arrived while the run was
	// not paused.
	ErrRunNotPaused = New("run is not paused")
	// ErrRunFinished indicates an operation arrived after the run reached a
	// terminal status.
	ErrRunFinished = New("run already finished")
)

// Merge-related sentinel errors
var (
	// ErrIncompleteCategory indicates finalize was called while units tagged
	// with the category were still non-terminal.
	ErrIncompleteCategory = New("category has non-terminal units")
	// ErrUnknownCategory indicates that no unit was ever tagged with the
	// category.
	ErrUnknownCategory = New("unknown category")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// FanoutError is the base interface for all fanout errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type FanoutError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
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

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
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
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// UnitError represents errors tied to a single work unit's lifecycle.
//
// Example:
//
//	err := errors.NewUnitError("attempt failed", cause).WithUnitID("scan-auth").WithAttempt(2)
//	fmt.Println(err) // "unit error [unit=scan-auth, attempt=2]: attempt failed: ..."
type UnitError struct {
	baseError
	UnitID  string
	Phase   int
	Attempt int
}

// NewUnitError creates a new UnitError.
func NewUnitError(message string, cause error) *UnitError {
	return &UnitError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Phase:   -1,
		Attempt: -1,
	}
}

// WithUnitID adds a unit id to the error context.
func (e *UnitError) WithUnitID(id string) *UnitError {
	e.UnitID = id
	return e
}

// WithPhase adds a phase number to the error context.
func (e *UnitError) WithPhase(phase int) *UnitError {
	e.Phase = phase
	return e
}

// WithAttempt adds an attempt number to the error context.
func (e *UnitError) WithAttempt(n int) *UnitError {
	e.Attempt = n
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *UnitError) WithRetryable(r bool) *UnitError {
	e.retryable = r
	return e
}

// WithSeverity sets the error severity.
func (e *UnitError) WithSeverity(s Severity) *UnitError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *UnitError) Error() string {
	var parts []string
	if e.UnitID != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.UnitID))
	}
	if e.Phase >= 0 {
		parts = append(parts, fmt.Sprintf("phase=%d", e.Phase))
	}
	if e.Attempt >= 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}

	prefix := "unit error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("unit error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *UnitError) Is(target error) bool {
	if _, ok := target.(*UnitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// QueueError represents errors from the work-unit queue.
//
// Example:
//
//	err := errors.NewQueueError("enqueue rejected", errors.ErrDuplicateUnit).WithUnitID("scan-auth")
type QueueError struct {
	baseError
	UnitID string
	Phase  int
}

// NewQueueError creates a new QueueError.
func NewQueueError(message string, cause error) *QueueError {
	return &QueueError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Phase: -1,
	}
}

// WithUnitID adds a unit id to the error context.
func (e *QueueError) WithUnitID(id string) *QueueError {
	e.UnitID = id
	return e
}

// WithPhase adds a phase number to the error context.
func (e *QueueError) WithPhase(phase int) *QueueError {
	e.Phase = phase
	return e
}

// Error returns the formatted error message.
func (e *QueueError) Error() string {
	var parts []string
	if e.UnitID != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.UnitID))
	}
	if e.Phase >= 0 {
		parts = append(parts, fmt.Sprintf("phase=%d", e.Phase))
	}

	prefix := "queue error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("queue error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *QueueError) Is(target error) bool {
	if _, ok := target.(*QueueError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MergeError represents errors from result merging.
//
// Example:
//
//	err := errors.NewMergeError("finalize rejected", errors.ErrIncompleteCategory).WithCategory("security")
type MergeError struct {
	baseError
	Category string
	UnitID   string
}

// NewMergeError creates a new MergeError.
func NewMergeError(message string, cause error) *MergeError {
	return &MergeError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithCategory adds a category to the error context.
func (e *MergeError) WithCategory(category string) *MergeError {
	e.Category = category
	return e
}

// WithUnitID adds a unit id to the error context.
func (e *MergeError) WithUnitID(id string) *MergeError {
	e.UnitID = id
	return e
}

// Error returns the formatted error message.
func (e *MergeError) Error() string {
	var parts []string
	if e.Category != "" {
		parts = append(parts, fmt.Sprintf("category=%s", e.Category))
	}
	if e.UnitID != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.UnitID))
	}

	prefix := "merge error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("merge error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *MergeError) Is(target error) bool {
	if _, ok := target.(*MergeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the error is transient and the operation may
// succeed on retry. Errors that don't implement FanoutError are not
// retryable.
func IsRetryable(err error) bool {
	var fe FanoutError
	if errors.As(err, &fe) {
		return fe.IsRetryable()
	}
	return false
}

// GetSeverity returns the severity of the error, or SeverityError for
// errors that don't implement FanoutError.
func GetSeverity(err error) Severity {
	var fe FanoutError
	if errors.As(err, &fe) {
		return fe.Severity()
	}
	return SeverityError
}
