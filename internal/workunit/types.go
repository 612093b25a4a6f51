package workunit

import "time"

// Status represents the current state of a work unit.
type Status string

const (
	// StatusPending indicates the unit is waiting to be claimed by a slot.
	StatusPending Status = "pending"

	// StatusRunning indicates an attempt is actively executing.
	StatusRunning Status = "running"

	// StatusRetrying indicates the last attempt failed and the unit is
	// waiting out its backoff before the next attempt.
	StatusRetrying Status = "retrying"

	// StatusSucceeded indicates an attempt completed successfully.
	StatusSucceeded Status = "succeeded"

	// StatusFailed indicates the unit exhausted its retries or failed
	// fatally.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the run ended before the unit could finish;
	// a cancelled unit with no recorded attempts was never dispatched.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the unit status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Outcome classifies how a single attempt ended.
type Outcome string

const (
	// OutcomeSuccess means the executor returned output.
	OutcomeSuccess Outcome = "success"

	// OutcomeTimeout means the attempt exceeded its per-attempt deadline.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeError means the executor reported a failure.
	OutcomeError Outcome = "error"
)

// Attempt records one dispatch of a unit to the executor. Attempts are
// immutable once recorded; a unit accumulates at most maxRetries+1 of them.
type Attempt struct {
	// Number is the 1-based attempt number.
	Number int `json:"number"`

	// Start is when the attempt was dispatched.
	Start time.Time `json:"start"`

	// End is when the attempt reached its outcome.
	End time.Time `json:"end"`

	// Outcome classifies how the attempt ended.
	Outcome Outcome `json:"outcome"`

	// Output is the executor's result. Set only on success.
	Output string `json:"output,omitempty"`

	// Error describes the failure. Set on timeout and error outcomes.
	Error string `json:"error,omitempty"`
}

// Duration returns the attempt's elapsed wall-clock time.
func (a Attempt) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Unit is one independently dispatchable piece of work. Status transitions
// are owned by the runner driving the unit; the queue guarantees a unit is
// claimed by exactly one slot at a time.
type Unit struct {
	// ID uniquely identifies the unit within a run.
	ID string `json:"id"`

	// Phase partitions units into waves; phase N+1 is not dispatched until
	// every phase N unit is terminal. Units default to phase 0.
	Phase int `json:"phase"`

	// Description is the opaque payload handed to the executor verbatim.
	Description string `json:"description"`

	// Category tags the unit for merge grouping.
	Category string `json:"category"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// ClaimedAt is when a slot first claimed the unit.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	// CompletedAt is when the unit reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Attempts is the recorded attempt history, oldest first.
	Attempts []Attempt `json:"attempts,omitempty"`
}

// LastAttempt returns the most recent attempt and true, or false if no
// attempt was ever recorded.
func (u *Unit) LastAttempt() (Attempt, bool) {
	if len(u.Attempts) == 0 {
		return Attempt{}, false
	}
	return u.Attempts[len(u.Attempts)-1], true
}

// WasAttempted reports whether the unit was ever dispatched.
func (u *Unit) WasAttempted() bool {
	return len(u.Attempts) > 0
}

// clone returns a deep copy safe to hand outside the queue's lock.
func (u *Unit) clone() *Unit {
	cp := *u
	if u.ClaimedAt != nil {
		ts := *u.ClaimedAt
		cp.ClaimedAt = &ts
	}
	if u.CompletedAt != nil {
		ts := *u.CompletedAt
		cp.CompletedAt = &ts
	}
	if u.Attempts != nil {
		cp.Attempts = make([]Attempt, len(u.Attempts))
		copy(cp.Attempts, u.Attempts)
	}
	return &cp
}

// Counts is a snapshot of per-status unit totals.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Retrying  int `json:"retrying"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Terminal returns how many units reached a final state.
func (c Counts) Terminal() int {
	return c.Succeeded + c.Failed + c.Cancelled
}
