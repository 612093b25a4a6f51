package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// RunStatus is the lifecycle state of a whole run, as opposed to the
// per-unit statuses tracked by the queue.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusAborted   RunStatus = "aborted"
	StatusCompleted RunStatus = "completed"
)

// IsTerminal reports whether the run can no longer change state.
func (s RunStatus) IsTerminal() bool {
	return s == StatusAborted || s == StatusCompleted
}

// state tracks the run lifecycle under a lock. Transitions are
// validated so a late breaker callback cannot revive a finished run.
type state struct {
	mu          sync.Mutex
	runID       string
	status      RunStatus
	startedAt   time.Time
	finishedAt  time.Time
	abortReason string
}

func newState(runID string) *state {
	return &state{
		runID:  runID,
		status: StatusRunning,
	}
}

func (s *state) RunID() string {
	return s.runID
}

func (s *state) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *state) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *state) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

func (s *state) AbortReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortReason
}

func (s *state) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = time.Now()
}

func (s *state) pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return fmt.Errorf("%w: cannot pause from %s", errors.ErrInvalidTransition, s.status)
	}
	s.status = StatusPaused
	return nil
}

func (s *state) resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return fmt.Errorf("%w: cannot resume from %s", errors.ErrInvalidTransition, s.status)
	}
	s.status = StatusRunning
	return nil
}

// abort moves the run to Aborted. It is a no-op on an already terminal
// run so racing abort sources (breaker, declined pause, external
// cancel) settle on the first reason recorded.
func (s *state) abort(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return false
	}
	s.status = StatusAborted
	s.abortReason = reason
	s.finishedAt = time.Now()
	return true
}

func (s *state) complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return fmt.Errorf("%w: cannot complete from %s", errors.ErrInvalidTransition, s.status)
	}
	s.status = StatusCompleted
	s.finishedAt = time.Now()
	return nil
}
