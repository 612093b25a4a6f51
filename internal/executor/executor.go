// Package executor defines the boundary between the orchestrator and the
// external system that actually performs work-unit tasks. The orchestrator
// never interprets a unit's description; it forwards it verbatim and
// classifies the outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
)

// Executor performs the task described by a work unit and returns its
// textual output. The per-attempt timeout arrives as the context deadline;
// implementations must honor cancellation.
//
// Implementations live outside this repository (a remote API client, a
// process pool, a goroutine pool); the orchestrator only depends on this
// interface.
type Executor interface {
	Execute(ctx context.Context, description string) (string, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, description string) (string, error)

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, description string) (string, error) {
	return f(ctx, description)
}

// Kind classifies an executor failure. The kind decides whether the
// orchestrator retries the attempt.
type Kind int

const (
	// KindTimeout means the attempt exceeded its per-attempt deadline.
	// Retried while retry budget remains.
	KindTimeout Kind = iota
	// KindTransient means the executor failed in a way that may succeed on
	// retry (rate limit, connection reset). Retried while budget remains.
	KindTransient
	// KindFatal means the executor cannot ever complete this description
	// (malformed input, permanent rejection). Never retried.
	KindFatal
)

// String returns the string representation of the failure kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the failure surface an Executor reports. Callers wrap their
// underlying cause so the orchestrator can classify without inspecting it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("executor %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("executor %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewTimeout creates a timeout failure.
func NewTimeout(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

// NewTransient creates a retryable failure.
func NewTransient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: message, Cause: cause}
}

// NewFatal creates a non-retryable failure.
func NewFatal(message string, cause error) *Error {
	return &Error{Kind: KindFatal, Message: message, Cause: cause}
}

// Classify maps any error returned by an Executor to a failure kind.
// Context deadline errors count as timeouts whether or not the executor
// wrapped them. Errors without an executor classification are treated as
// transient; the retry budget bounds how long that optimism lasts.
func Classify(err error) Kind {
	var execErr *Error
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransient
}

// IsRetryable reports whether a failed attempt with this error may be
// re-dispatched.
func IsRetryable(err error) bool {
	return Classify(err) != KindFatal
}
