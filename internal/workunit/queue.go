package workunit

import (
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// Queue manages the work units of one orchestration run with phase-aware
// claiming. Units within a phase are released in submission order; a unit in
// phase N+1 is never released while any phase N unit is non-terminal.
// All methods are safe for concurrent use via an internal mutex.
type Queue struct {
	mu    sync.Mutex
	units map[string]*Unit // unit ID -> unit
	order []string         // unit IDs in submission order

	phaseTotal    map[int]int // phase -> unit count
	phaseTerminal map[int]int // phase -> terminal unit count
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		units:         make(map[string]*Unit),
		phaseTotal:    make(map[int]int),
		phaseTerminal: make(map[int]int),
	}
}

// Enqueue adds units to the given phase in submission order. Each unit's
// Phase field is overwritten with the phase argument and its status set to
// pending. Fails with ErrDuplicateUnit if any unit id already exists in the
// run; nothing is enqueued on failure.
func (q *Queue) Enqueue(units []Unit, phase int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]struct{}, len(units))
	for i := range units {
		id := units[i].ID
		if id == "" {
			return errors.NewQueueError("unit id must not be empty", errors.ErrInvalidInput).WithPhase(phase)
		}
		if _, ok := q.units[id]; ok {
			return errors.NewQueueError("enqueue rejected", errors.ErrDuplicateUnit).WithUnitID(id).WithPhase(phase)
		}
		if _, ok := seen[id]; ok {
			return errors.NewQueueError("enqueue rejected", errors.ErrDuplicateUnit).WithUnitID(id).WithPhase(phase)
		}
		seen[id] = struct{}{}
	}

	for i := range units {
		u := units[i]
		u.Phase = phase
		u.Status = StatusPending
		q.units[u.ID] = &u
		q.order = append(q.order, u.ID)
		q.phaseTotal[phase]++
	}
	return nil
}

// NextReady atomically claims the next dispatchable unit: the earliest
// submitted pending unit whose phase is current (every earlier phase fully
// terminal). The claimed unit transitions to running. Returns false when
// nothing is claimable right now; that is not a terminal condition unless
// IsComplete also reports true.
func (q *Queue) NextReady() (*Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	phase, ok := q.currentPhase()
	if !ok {
		return nil, false
	}

	for _, id := range q.order {
		u := q.units[id]
		if u.Status != StatusPending || u.Phase != phase {
			continue
		}
		now := time.Now()
		u.Status = StatusRunning
		u.ClaimedAt = &now
		return u.clone(), true
	}
	return nil, false
}

// currentPhase returns the lowest phase that still has non-terminal units.
// Callers must hold q.mu.
func (q *Queue) currentPhase() (int, bool) {
	found := false
	current := 0
	for phase, total := range q.phaseTotal {
		if q.phaseTerminal[phase] >= total {
			continue
		}
		if !found || phase < current {
			current = phase
			found = true
		}
	}
	return current, found
}

// MarkRetrying records a failed attempt and parks the unit in the retrying
// state for its backoff window.
func (q *Queue) MarkRetrying(id string, attempt Attempt) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	u, ok := q.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownUnit, id)
	}
	if u.Status != StatusRunning {
		return fmt.Errorf("%w: cannot retry unit %s from %s", errors.ErrInvalidTransition, id, u.Status)
	}
	u.Attempts = append(u.Attempts, attempt)
	u.Status = StatusRetrying
	return nil
}

// Redispatch moves a retrying unit back to running for its next attempt.
func (q *Queue) Redispatch(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	u, ok := q.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownUnit, id)
	}
	if u.Status != StatusRetrying {
		return fmt.Errorf("%w: cannot redispatch unit %s from %s", errors.ErrInvalidTransition, id, u.Status)
	}
	u.Status = StatusRunning
	return nil
}

// MarkSucceeded records the final successful attempt and completes the unit.
func (q *Queue) MarkSucceeded(id string, attempt Attempt) error {
	return q.markTerminal(id, StatusSucceeded, &attempt)
}

// MarkFailed records the final failed attempt and completes the unit.
func (q *Queue) MarkFailed(id string, attempt Attempt) error {
	return q.markTerminal(id, StatusFailed, &attempt)
}

// MarkCancelled terminates a claimed unit without a further attempt, used
// when the run aborts while the unit is running or waiting out a backoff.
// The aborted attempt, if any, should already be recorded.
func (q *Queue) MarkCancelled(id string) error {
	return q.markTerminal(id, StatusCancelled, nil)
}

// markTerminal transitions a running or retrying unit to a terminal status,
// optionally recording a final attempt.
func (q *Queue) markTerminal(id string, status Status, attempt *Attempt) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	u, ok := q.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownUnit, id)
	}
	if u.Status != StatusRunning && u.Status != StatusRetrying {
		return fmt.Errorf("%w: cannot transition unit %s from %s to %s", errors.ErrInvalidTransition, id, u.Status, status)
	}
	if attempt != nil {
		u.Attempts = append(u.Attempts, *attempt)
	}
	now := time.Now()
	u.Status = status
	u.CompletedAt = &now
	q.phaseTerminal[u.Phase]++
	return nil
}

// CancelPending marks every still-pending unit cancelled and returns their
// ids in submission order. Called once when the run aborts; the returned
// units were never dispatched.
func (q *Queue) CancelPending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var cancelled []string
	now := time.Now()
	for _, id := range q.order {
		u := q.units[id]
		if u.Status != StatusPending {
			continue
		}
		u.Status = StatusCancelled
		u.CompletedAt = &now
		q.phaseTerminal[u.Phase]++
		cancelled = append(cancelled, id)
	}
	return cancelled
}

// Get returns a copy of the unit with the given id.
func (q *Queue) Get(id string) (*Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	u, ok := q.units[id]
	if !ok {
		return nil, false
	}
	return u.clone(), true
}

// Units returns copies of every unit in submission order.
func (q *Queue) Units() []Unit {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Unit, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.units[id].clone())
	}
	return out
}

// Counts returns a snapshot of per-status totals.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := Counts{Total: len(q.units)}
	for _, u := range q.units {
		switch u.Status {
		case StatusPending:
			c.Pending++
		case StatusRunning:
			c.Running++
		case StatusRetrying:
			c.Retrying++
		case StatusSucceeded:
			c.Succeeded++
		case StatusFailed:
			c.Failed++
		case StatusCancelled:
			c.Cancelled++
		}
	}
	return c
}

// IsComplete returns true once every unit is terminal. An empty queue is
// complete.
func (q *Queue) IsComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, u := range q.units {
		if !u.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Len returns the total number of units in the run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}
