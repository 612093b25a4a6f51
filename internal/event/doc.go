// Package event provides a pub-sub event bus for decoupled inter-component
// communication in fanout.
//
// This package lets task runners, the circuit breaker, and the progress
// reporter communicate without direct method calls. Producers publish events
// without knowing who will receive them, and consumers subscribe without
// knowing who will produce them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Unit Lifecycle:
//   - [UnitDispatchedEvent]: an attempt was dispatched to the executor
//   - [UnitRetryingEvent]: an attempt failed and the unit entered backoff
//   - [UnitSucceededEvent]: the unit completed successfully
//   - [UnitFailedEvent]: the unit exhausted its retries or failed fatally
//   - [UnitCancelledEvent]: the run ended before the unit could finish
//
// Run Transitions:
//   - [RunPausedEvent]: the circuit breaker hit its consecutive-failure threshold
//   - [RunResumedEvent]: an external decision resumed a paused run
//   - [RunAbortedEvent]: the breaker hit its cumulative threshold or the pause was declined
//   - [RunCompletedEvent]: every unit reached a terminal state
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called synchronously
// and protected against panics - a panicking handler will not prevent other
// handlers from being called. Handlers must therefore stay cheap; anything
// slow belongs behind a buffered channel on the subscriber's side.
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - unit.dispatched, unit.retrying, unit.succeeded, unit.failed, unit.cancelled
//   - run.paused, run.resumed, run.aborted, run.completed
package event
