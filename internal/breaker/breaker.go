// Package breaker provides run-wide failure accounting and dispatch gating
// for an orchestration run. It observes every terminal unit outcome, pauses
// dispatch after too many consecutive failures, and aborts the run outright
// after too many cumulative failures.
package breaker

import (
	"sync"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
)

// Config holds the breaker thresholds.
type Config struct {
	// PauseThreshold pauses dispatch after this many consecutive failures
	// with no intervening success. A value of 0 disables pausing.
	PauseThreshold int

	// AbortThreshold aborts the run after this many cumulative failures,
	// regardless of intervening successes. A value of 0 disables aborting.
	AbortThreshold int
}

// Callbacks defines hooks for breaker transitions. Nil callbacks are
// skipped. Callbacks are invoked outside the breaker's lock, at most once
// per transition.
type Callbacks struct {
	// OnPause is called when consecutive failures reach the pause
	// threshold. The run owner must surface a resume/abort decision.
	OnPause func(consecutive int)

	// OnResume is called when a pause is lifted by an external decision.
	OnResume func()

	// OnAbort is called when the breaker terminates the run, either by the
	// cumulative threshold or a declined pause.
	OnAbort func(cumulative int, reason string)
}

// Snapshot is a point-in-time view of the breaker's counters and state.
type Snapshot struct {
	Consecutive int
	Cumulative  int
	Paused      bool
	Aborted     bool
}

// Breaker tracks failure counters across all task runners of a run.
// All methods are safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	config    Config
	callbacks Callbacks
	logger    *logging.Logger

	consecutive int
	cumulative  int
	paused      bool
	aborted     bool
}

// New creates a breaker with the given thresholds.
func New(cfg Config, callbacks Callbacks, logger *logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Breaker{
		config:    cfg,
		callbacks: callbacks,
		logger:    logger,
	}
}

// OnOutcome records one terminal unit outcome. A success resets the
// consecutive counter; a failure increments both counters. The cumulative
// threshold is evaluated first and aborts unconditionally, even while a
// pause decision is pending. Outcomes arriving after an abort are ignored.
func (b *Breaker) OnOutcome(success bool) {
	b.mu.Lock()

	if b.aborted {
		b.mu.Unlock()
		return
	}

	if success {
		b.consecutive = 0
		b.mu.Unlock()
		return
	}

	b.consecutive++
	b.cumulative++

	if b.config.AbortThreshold > 0 && b.cumulative >= b.config.AbortThreshold {
		cumulative := b.cumulative
		b.aborted = true
		b.mu.Unlock()

		b.logger.Warn("cumulative failure threshold reached, aborting run",
			"cumulative_failures", cumulative,
			"abort_threshold", b.config.AbortThreshold,
		)
		if b.callbacks.OnAbort != nil {
			b.callbacks.OnAbort(cumulative, "cumulative failure threshold reached")
		}
		return
	}

	if b.config.PauseThreshold > 0 && !b.paused && b.consecutive >= b.config.PauseThreshold {
		consecutive := b.consecutive
		b.paused = true
		b.mu.Unlock()

		b.logger.Warn("consecutive failure threshold reached, pausing dispatch",
			"consecutive_failures", consecutive,
			"pause_threshold", b.config.PauseThreshold,
		)
		if b.callbacks.OnPause != nil {
			b.callbacks.OnPause(consecutive)
		}
		return
	}

	b.mu.Unlock()
}

// Resume consumes the external decision for a paused run. Resuming resets
// the consecutive counter and lifts the pause; declining aborts the run.
// Fails with ErrRunNotPaused when no pause is pending, and with
// ErrRunAborted when the run already aborted out from under the decision.
func (b *Breaker) Resume(proceed bool) error {
	b.mu.Lock()

	if b.aborted {
		b.mu.Unlock()
		return errors.ErrRunAborted
	}
	if !b.paused {
		b.mu.Unlock()
		return errors.ErrRunNotPaused
	}

	if !proceed {
		cumulative := b.cumulative
		b.paused = false
		b.aborted = true
		b.mu.Unlock()

		b.logger.Warn("pause declined, aborting run", "cumulative_failures", cumulative)
		if b.callbacks.OnAbort != nil {
			b.callbacks.OnAbort(cumulative, "pause declined")
		}
		return nil
	}

	b.paused = false
	b.consecutive = 0
	b.mu.Unlock()

	b.logger.Info("pause lifted, resuming dispatch")
	if b.callbacks.OnResume != nil {
		b.callbacks.OnResume()
	}
	return nil
}

// Snapshot returns the current counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Consecutive: b.consecutive,
		Cumulative:  b.cumulative,
		Paused:      b.paused,
		Aborted:     b.aborted,
	}
}

// IsPaused reports whether a pause decision is pending.
func (b *Breaker) IsPaused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// IsAborted reports whether the breaker terminated the run.
func (b *Breaker) IsAborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}
