package event

import "time"

// Event type identifiers published on the bus.
const (
	TypeUnitDispatched = "unit.dispatched"
	TypeUnitRetrying   = "unit.retrying"
	TypeUnitSucceeded  = "unit.succeeded"
	TypeUnitFailed     = "unit.failed"
	TypeUnitCancelled  = "unit.cancelled"
	TypeRunPaused      = "run.paused"
	TypeRunResumed     = "run.resumed"
	TypeRunAborted     = "run.aborted"
	TypeRunCompleted   = "run.completed"
)

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "unit.dispatched", "run.paused")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Unit Lifecycle Events
// -----------------------------------------------------------------------------

// UnitDispatchedEvent is emitted each time an attempt is handed to the
// executor, including re-dispatches after backoff.
type UnitDispatchedEvent struct {
	baseEvent
	UnitID   string // Unit identifier
	Phase    int    // Phase the unit belongs to
	Category string // Merge-grouping category
	Attempt  int    // 1-based attempt number being dispatched
}

// NewUnitDispatchedEvent creates a UnitDispatchedEvent.
func NewUnitDispatchedEvent(unitID string, phase int, category string, attempt int) UnitDispatchedEvent {
	return UnitDispatchedEvent{
		baseEvent: newBaseEvent(TypeUnitDispatched),
		UnitID:    unitID,
		Phase:     phase,
		Category:  category,
		Attempt:   attempt,
	}
}

// UnitRetryingEvent is emitted when an attempt fails retryably and the unit
// enters its backoff window.
type UnitRetryingEvent struct {
	baseEvent
	UnitID  string        // Unit identifier
	Attempt int           // Attempt number that just failed
	Backoff time.Duration // How long the unit waits before re-dispatch
	Reason  string        // Failure description
}

// NewUnitRetryingEvent creates a UnitRetryingEvent.
func NewUnitRetryingEvent(unitID string, attempt int, backoff time.Duration, reason string) UnitRetryingEvent {
	return UnitRetryingEvent{
		baseEvent: newBaseEvent(TypeUnitRetrying),
		UnitID:    unitID,
		Attempt:   attempt,
		Backoff:   backoff,
		Reason:    reason,
	}
}

// UnitSucceededEvent is emitted when a unit reaches the succeeded state.
type UnitSucceededEvent struct {
	baseEvent
	UnitID   string        // Unit identifier
	Category string        // Merge-grouping category
	Attempts int           // Total attempts the unit consumed
	Duration time.Duration // Wall-clock time of the final attempt
}

// NewUnitSucceededEvent creates a UnitSucceededEvent.
func NewUnitSucceededEvent(unitID, category string, attempts int, duration time.Duration) UnitSucceededEvent {
	return UnitSucceededEvent{
		baseEvent: newBaseEvent(TypeUnitSucceeded),
		UnitID:    unitID,
		Category:  category,
		Attempts:  attempts,
		Duration:  duration,
	}
}

// UnitFailedEvent is emitted when a unit reaches the failed state, either by
// exhausting retries or by a fatal executor error.
type UnitFailedEvent struct {
	baseEvent
	UnitID   string // Unit identifier
	Category string // Merge-grouping category
	Attempts int    // Total attempts the unit consumed
	Reason   string // Final failure description
	Fatal    bool   // True when the failure skipped the retry budget
}

// NewUnitFailedEvent creates a UnitFailedEvent.
func NewUnitFailedEvent(unitID, category string, attempts int, reason string, fatal bool) UnitFailedEvent {
	return UnitFailedEvent{
		baseEvent: newBaseEvent(TypeUnitFailed),
		UnitID:    unitID,
		Category:  category,
		Attempts:  attempts,
		Reason:    reason,
		Fatal:     fatal,
	}
}

// UnitCancelledEvent is emitted for units terminated by an aborted run.
type UnitCancelledEvent struct {
	baseEvent
	UnitID    string // Unit identifier
	Attempted bool   // Whether the unit was ever dispatched
}

// NewUnitCancelledEvent creates a UnitCancelledEvent.
func NewUnitCancelledEvent(unitID string, attempted bool) UnitCancelledEvent {
	return UnitCancelledEvent{
		baseEvent: newBaseEvent(TypeUnitCancelled),
		UnitID:    unitID,
		Attempted: attempted,
	}
}

// -----------------------------------------------------------------------------
// Run Transition Events
// -----------------------------------------------------------------------------

// RunPausedEvent is emitted when the circuit breaker pauses dispatch after
// too many consecutive failures.
type RunPausedEvent struct {
	baseEvent
	ConsecutiveFailures int // Counter value that tripped the pause
}

// NewRunPausedEvent creates a RunPausedEvent.
func NewRunPausedEvent(consecutive int) RunPausedEvent {
	return RunPausedEvent{
		baseEvent:           newBaseEvent(TypeRunPaused),
		ConsecutiveFailures: consecutive,
	}
}

// RunResumedEvent is emitted when an external decision resumes a paused run.
type RunResumedEvent struct {
	baseEvent
}

// NewRunResumedEvent creates a RunResumedEvent.
func NewRunResumedEvent() RunResumedEvent {
	return RunResumedEvent{baseEvent: newBaseEvent(TypeRunResumed)}
}

// RunAbortedEvent is emitted when the run terminates early, either by the
// cumulative-failure threshold or a declined pause.
type RunAbortedEvent struct {
	baseEvent
	CumulativeFailures int    // Cumulative failure count at abort time
	Reason             string // Why the run aborted
}

// NewRunAbortedEvent creates a RunAbortedEvent.
func NewRunAbortedEvent(cumulative int, reason string) RunAbortedEvent {
	return RunAbortedEvent{
		baseEvent:          newBaseEvent(TypeRunAborted),
		CumulativeFailures: cumulative,
		Reason:             reason,
	}
}

// RunCompletedEvent is emitted once every unit has reached a terminal state
// and the run finished without aborting.
type RunCompletedEvent struct {
	baseEvent
	Succeeded int           // Units that succeeded
	Failed    int           // Units that failed
	Duration  time.Duration // Total run wall-clock time
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(succeeded, failed int, duration time.Duration) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent: newBaseEvent(TypeRunCompleted),
		Succeeded: succeeded,
		Failed:    failed,
		Duration:  duration,
	}
}
