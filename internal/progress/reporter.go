// Package progress tracks per-unit and aggregate progress for one
// orchestration run. The reporter consumes lifecycle events from the event
// bus and answers pull-based snapshot queries from any presentation layer.
// Event handling is a handful of map updates under a lock, so publishing
// runners are never stalled; external streaming consumers are served
// through buffered channels that drop on overflow instead of blocking.
package progress

import (
	"sync"
	"time"

	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// subscriberBuffer is the channel capacity handed to each Subscribe caller.
// A consumer further behind than this loses events rather than stalling the
// run.
const subscriberBuffer = 64

// UnitProgress is the last-known state of a single unit.
type UnitProgress struct {
	ID         string
	Phase      int
	Category   string
	Status     workunit.Status
	Attempt    int       // Most recent attempt number observed
	StartedAt  time.Time // First dispatch; zero while pending
	FinishedAt time.Time // Terminal transition; zero while active
	LastError  string    // Most recent failure description
}

// Elapsed returns how long the unit has been (or was) in flight. Pending
// units report zero; terminal units report their frozen total.
func (u UnitProgress) Elapsed() time.Duration {
	if u.StartedAt.IsZero() {
		return 0
	}
	if !u.FinishedAt.IsZero() {
		return u.FinishedAt.Sub(u.StartedAt)
	}
	return time.Since(u.StartedAt)
}

// ElapsedSeconds returns Elapsed in seconds, for presentation layers that
// render plain numbers.
func (u UnitProgress) ElapsedSeconds() float64 {
	return u.Elapsed().Seconds()
}

// Snapshot is a point-in-time view of the whole run.
type Snapshot struct {
	Total     int
	Completed int // Units in any terminal state
	Succeeded int
	Failed    int
	Cancelled int
	Running   int
	Retrying  int
	Pending   int

	Paused  bool
	Aborted bool

	StartTime time.Time
	EndTime   time.Time // Zero until the run finishes

	PerUnit []UnitProgress // Registration order
}

// IsComplete returns true once every unit is terminal.
func (s Snapshot) IsComplete() bool {
	return s.Total > 0 && s.Completed == s.Total
}

// PercentComplete returns completion as 0-1.
func (s Snapshot) PercentComplete() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

// SuccessRate returns the fraction of terminal units that succeeded.
func (s Snapshot) SuccessRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Completed)
}

// Duration returns elapsed run time, frozen once the run finishes.
func (s Snapshot) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// Reporter aggregates run progress from bus events.
// All methods are safe for concurrent use.
type Reporter struct {
	mu    sync.RWMutex
	units map[string]*UnitProgress
	order []string

	paused    bool
	aborted   bool
	startTime time.Time
	endTime   time.Time

	subMu  sync.Mutex
	subs   []chan event.Event
	closed bool
}

// NewReporter creates a reporter subscribed to every event on the bus.
func NewReporter(bus *event.Bus) *Reporter {
	r := &Reporter{
		units:     make(map[string]*UnitProgress),
		startTime: time.Now(),
	}
	bus.SubscribeAll(r.handle)
	return r
}

// Register seeds per-unit rows before dispatch begins so snapshots account
// for units that are never attempted.
func (r *Reporter) Register(units []workunit.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range units {
		if _, ok := r.units[u.ID]; ok {
			continue
		}
		r.units[u.ID] = &UnitProgress{
			ID:       u.ID,
			Phase:    u.Phase,
			Category: u.Category,
			Status:   workunit.StatusPending,
		}
		r.order = append(r.order, u.ID)
	}
}

// handle applies one bus event to the tracked state, then forwards it to
// streaming subscribers without blocking.
func (r *Reporter) handle(e event.Event) {
	r.mu.Lock()
	switch ev := e.(type) {
	case event.UnitDispatchedEvent:
		u := r.unitRowLocked(ev.UnitID)
		u.Phase = ev.Phase
		u.Category = ev.Category
		u.Status = workunit.StatusRunning
		u.Attempt = ev.Attempt
		if u.StartedAt.IsZero() {
			u.StartedAt = ev.Timestamp()
		}
	case event.UnitRetryingEvent:
		u := r.unitRowLocked(ev.UnitID)
		u.Status = workunit.StatusRetrying
		u.Attempt = ev.Attempt
		u.LastError = ev.Reason
	case event.UnitSucceededEvent:
		u := r.unitRowLocked(ev.UnitID)
		u.Status = workunit.StatusSucceeded
		u.Attempt = ev.Attempts
		u.FinishedAt = ev.Timestamp()
	case event.UnitFailedEvent:
		u := r.unitRowLocked(ev.UnitID)
		u.Status = workunit.StatusFailed
		u.Attempt = ev.Attempts
		u.LastError = ev.Reason
		u.FinishedAt = ev.Timestamp()
	case event.UnitCancelledEvent:
		u := r.unitRowLocked(ev.UnitID)
		u.Status = workunit.StatusCancelled
		u.FinishedAt = ev.Timestamp()
	case event.RunPausedEvent:
		r.paused = true
	case event.RunResumedEvent:
		r.paused = false
	case event.RunAbortedEvent:
		r.paused = false
		r.aborted = true
		r.endTime = ev.Timestamp()
	case event.RunCompletedEvent:
		r.endTime = ev.Timestamp()
	}
	r.mu.Unlock()

	r.forward(e)
}

// unitRowLocked returns the row for a unit, creating it for ids that were
// never registered. Callers must hold r.mu.
func (r *Reporter) unitRowLocked(id string) *UnitProgress {
	if u, ok := r.units[id]; ok {
		return u
	}
	u := &UnitProgress{ID: id, Status: workunit.StatusPending}
	r.units[id] = u
	r.order = append(r.order, id)
	return u
}

// Snapshot returns the current aggregate and per-unit view.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Total:     len(r.order),
		Paused:    r.paused,
		Aborted:   r.aborted,
		StartTime: r.startTime,
		EndTime:   r.endTime,
		PerUnit:   make([]UnitProgress, 0, len(r.order)),
	}

	for _, id := range r.order {
		u := *r.units[id]
		s.PerUnit = append(s.PerUnit, u)

		switch u.Status {
		case workunit.StatusPending:
			s.Pending++
		case workunit.StatusRunning:
			s.Running++
		case workunit.StatusRetrying:
			s.Retrying++
		case workunit.StatusSucceeded:
			s.Succeeded++
		case workunit.StatusFailed:
			s.Failed++
		case workunit.StatusCancelled:
			s.Cancelled++
		}
	}
	s.Completed = s.Succeeded + s.Failed + s.Cancelled
	return s
}

// Subscribe returns a channel receiving every event the reporter sees.
// The channel is buffered; events are dropped for consumers that fall more
// than subscriberBuffer events behind. The channel closes with Close.
func (r *Reporter) Subscribe() <-chan event.Event {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	ch := make(chan event.Event, subscriberBuffer)
	if r.closed {
		close(ch)
		return ch
	}
	r.subs = append(r.subs, ch)
	return ch
}

// forward fans an event out to subscribers, dropping instead of blocking.
func (r *Reporter) forward(e event.Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		return
	}
	for _, ch := range r.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes all subscriber channels. Snapshot remains usable.
func (r *Reporter) Close() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, ch := range r.subs {
		close(ch)
	}
	r.subs = nil
}
