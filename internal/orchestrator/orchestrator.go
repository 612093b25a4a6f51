// Package orchestrator drives a run end to end. It owns the work-unit
// queue, the execution slot pool, the circuit breaker, the result
// merger, and the progress reporter, and exposes a single blocking Run
// that returns a full accounting of every unit no matter how the run
// ends.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/fanout/internal/breaker"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/executor"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/merge"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/runner"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// dispatchTick is how often the dispatch loop re-checks for claimable
// units and run completion.
const dispatchTick = 100 * time.Millisecond

// DecisionFunc answers whether a paused run should continue. The
// dispatch loop calls it with the consecutive failure count that
// tripped the pause; it may block until an operator responds but must
// return promptly once ctx is done. Returning false aborts the run.
type DecisionFunc func(ctx context.Context, consecutive int) bool

// Deps wires an orchestrator's collaborators. Executor is required.
type Deps struct {
	// Executor performs the actual work of each unit.
	Executor executor.Executor

	// RunID labels the run across logs, events, and the report. Leave
	// empty to generate one.
	RunID string

	// Decide resolves pauses. Nil declines every pause, which aborts
	// the run; headless callers that want to ride through failures
	// should disable the pause threshold instead.
	Decide DecisionFunc

	// Detect flags contradictory findings during merge. Nil disables
	// contradiction detection.
	Detect merge.ContradictionFunc

	Logger *logging.Logger
}

// Orchestrator coordinates one run. Enqueue units, then call Run once.
type Orchestrator struct {
	opts   Options
	deps   Deps
	logger *logging.Logger

	queue    *workunit.Queue
	bus      *event.Bus
	brk      *breaker.Breaker
	merger   *merge.Merger
	reporter *progress.Reporter
	runner   *runner.Runner
	state    *state

	started atomic.Bool

	// pauseCh hands the pause trip from the breaker callback to the
	// dispatch loop. The breaker allows one outstanding pause at a
	// time, so a buffer of one means the send never blocks.
	pauseCh chan int

	// cancelRun is set at the top of Run, before any unit goroutine
	// exists, and tears the run context down on abort.
	cancelRun context.CancelFunc
}

// New builds an orchestrator for a single run.
func New(opts Options, deps Deps) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("%w: executor is required", errors.ErrInvalidInput)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := logger.WithRun(runID)

	o := &Orchestrator{
		opts:    opts,
		deps:    deps,
		logger:  log,
		queue:   workunit.NewQueue(),
		bus:     event.NewBus(),
		merger:  merge.NewMerger(deps.Detect, log),
		state:   newState(runID),
		pauseCh: make(chan int, 1),
	}
	o.reporter = progress.NewReporter(o.bus)
	o.brk = breaker.New(
		breaker.Config{
			PauseThreshold: opts.PauseThreshold,
			AbortThreshold: opts.AbortThreshold,
		},
		breaker.Callbacks{
			OnPause:  o.onPause,
			OnResume: o.onResume,
			OnAbort:  o.onAbort,
		},
		log,
	)
	o.runner = runner.New(
		runner.Options{
			UnitTimeout: opts.UnitTimeout,
			MaxRetries:  opts.MaxRetries,
			Backoff:     opts.Backoff,
		},
		runner.Deps{
			Executor: deps.Executor,
			Queue:    o.queue,
			Breaker:  o.brk,
			Merger:   o.merger,
			Bus:      o.bus,
			Logger:   log,
		},
	)
	return o, nil
}

// RunID identifies this run across logs, events, and the final report.
func (o *Orchestrator) RunID() string {
	return o.state.RunID()
}

// Progress exposes the pull-based progress reporter for UIs.
func (o *Orchestrator) Progress() *progress.Reporter {
	return o.reporter
}

// Enqueue adds units to a phase. All units must be enqueued before Run
// is called; afterwards the queue is closed.
func (o *Orchestrator) Enqueue(units []workunit.Unit, phase int) error {
	if o.started.Load() {
		return fmt.Errorf("%w: units must be enqueued before the run starts", errors.ErrQueueClosed)
	}
	if err := o.queue.Enqueue(units, phase); err != nil {
		return err
	}

	stamped := make([]workunit.Unit, len(units))
	copy(stamped, units)
	for i := range stamped {
		stamped[i].Phase = phase
		stamped[i].Status = workunit.StatusPending
	}
	o.reporter.Register(stamped)
	o.merger.RegisterUnits(stamped)
	return nil
}

// Run dispatches every enqueued unit and blocks until the run reaches a
// terminal state. The returned report is complete regardless of how the
// run ended. The error is nil for a completed run, wraps ErrRunAborted
// when the breaker or a declined pause killed it, and is ctx.Err() when
// the caller cancelled.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: run already started", errors.ErrInvalidTransition)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelRun = cancel

	o.state.start()
	o.logger.Info("run starting",
		"units", o.queue.Len(),
		"concurrency", o.opts.EffectiveConcurrency(),
		"max_retries", o.opts.MaxRetries,
	)

	ticker := time.NewTicker(dispatchTick)
	defer ticker.Stop()

	var wg conc.WaitGroup

loop:
	for {
		if o.state.Status().IsTerminal() {
			break
		}
		o.claimReady(runCtx, &wg)
		if o.queue.IsComplete() {
			break
		}
		select {
		case <-runCtx.Done():
			if !o.state.Status().IsTerminal() {
				o.abortExternal(ctx)
			}
			break loop
		case consecutive := <-o.pauseCh:
			o.awaitDecision(runCtx, consecutive)
		case <-ticker.C:
		}
	}

	if rec := wg.WaitAndRecover(); rec != nil {
		o.logger.Error("unit goroutine panicked", "panic", rec.Value)
		o.abort(fmt.Sprintf("internal panic: %v", rec.Value), o.brk.Snapshot().Cumulative)
	}

	o.settle()
	report := o.buildReport()
	o.reporter.Close()

	if report.Status == StatusCompleted {
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, fmt.Errorf("%w: %s", errors.ErrRunAborted, report.AbortReason)
}

// claimReady fills free slots with dispatchable units. The runner
// reports outcomes to the breaker before the queue frees the slot, so
// by the time capacity opens up a tripped breaker is already visible
// here and the next claim cannot win the race against a pause.
func (o *Orchestrator) claimReady(ctx context.Context, wg *conc.WaitGroup) {
	limit := o.opts.EffectiveConcurrency()
	for ctx.Err() == nil && o.state.Status() == StatusRunning {
		if limit > 0 {
			c := o.queue.Counts()
			if c.Running+c.Retrying >= limit {
				return
			}
		}
		if o.brk.IsPaused() || o.brk.IsAborted() {
			return
		}
		unit, ok := o.queue.NextReady()
		if !ok {
			return
		}
		o.logger.Debug("unit claimed", "unit", unit.ID, "phase", unit.Phase)
		wg.Go(func() {
			o.runner.Run(ctx, unit)
		})
	}
}

// awaitDecision blocks the dispatch loop, not the in-flight units,
// until the pause is resolved. A nil decision source declines.
func (o *Orchestrator) awaitDecision(ctx context.Context, consecutive int) {
	if o.queue.IsComplete() {
		// Every unit is already terminal, there is nothing to decide.
		if err := o.brk.Resume(true); err != nil {
			o.logger.Warn("late resume not applied", "error", err)
		}
		return
	}

	proceed := false
	if o.deps.Decide != nil {
		proceed = o.deps.Decide(ctx, consecutive)
	}
	if ctx.Err() != nil {
		// The run was torn down while waiting; the abort path has
		// already settled the breaker.
		return
	}
	if err := o.brk.Resume(proceed); err != nil {
		o.logger.Warn("resume decision not applied", "error", err)
	}
}

func (o *Orchestrator) onPause(consecutive int) {
	if err := o.state.pause(); err != nil {
		o.logger.Warn("pause ignored", "error", err)
		return
	}
	o.logger.Warn("run paused", "consecutive_failures", consecutive)
	o.bus.Publish(event.NewRunPausedEvent(consecutive))
	o.pauseCh <- consecutive
}

func (o *Orchestrator) onResume() {
	if err := o.state.resume(); err != nil {
		o.logger.Warn("resume ignored", "error", err)
		return
	}
	o.logger.Info("run resumed")
	o.bus.Publish(event.NewRunResumedEvent())
}

func (o *Orchestrator) onAbort(cumulative int, reason string) {
	o.abort(reason, cumulative)
}

// abort is the single funnel for every abort source: breaker threshold,
// declined pause, external cancellation, and panics. The first caller
// wins; later calls are no-ops.
func (o *Orchestrator) abort(reason string, cumulative int) {
	if !o.state.abort(reason) {
		return
	}
	o.logger.Error("run aborted", "reason", reason, "cumulative_failures", cumulative)
	o.bus.Publish(event.NewRunAbortedEvent(cumulative, reason))
	if cancel := o.cancelRun; cancel != nil {
		cancel()
	}
	o.sweepPending()
}

func (o *Orchestrator) abortExternal(ctx context.Context) {
	reason := "run cancelled"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = "run deadline exceeded"
	}
	o.abort(reason, o.brk.Snapshot().Cumulative)
}

// sweepPending cancels units that never got a slot and feeds failure
// markers to the merger so category completeness stays honest. Safe to
// call more than once; already-terminal units are skipped.
func (o *Orchestrator) sweepPending() {
	ids := o.queue.CancelPending()
	for _, id := range ids {
		if u, ok := o.queue.Get(id); ok {
			if err := o.merger.IngestFailure(id, u.Category); err != nil {
				o.logger.Error("merger rejected cancelled unit", "unit", id, "error", err)
			}
		}
		o.bus.Publish(event.NewUnitCancelledEvent(id, false))
	}
	if len(ids) > 0 {
		o.logger.Info("cancelled pending units", "count", len(ids))
	}
}

// settle moves the run to its terminal state once every unit goroutine
// has returned, then emits the closing event.
func (o *Orchestrator) settle() {
	if o.state.Status() == StatusPaused {
		// The loop can only exit paused when the queue drained while
		// the pause was pending, so the decision is moot.
		if err := o.brk.Resume(true); err != nil {
			o.logger.Warn("late resume not applied", "error", err)
		}
	}

	if !o.state.Status().IsTerminal() {
		if err := o.state.complete(); err != nil {
			o.logger.Warn("completion raced abort", "error", err)
		}
	}

	switch o.state.Status() {
	case StatusCompleted:
		counts := o.queue.Counts()
		duration := o.state.FinishedAt().Sub(o.state.StartedAt())
		o.bus.Publish(event.NewRunCompletedEvent(counts.Succeeded, counts.Failed, duration))
		o.logger.Info("run completed",
			"succeeded", counts.Succeeded,
			"failed", counts.Failed,
			"duration", duration,
		)
	case StatusAborted:
		o.sweepPending()
	}
}

func (o *Orchestrator) buildReport() *Report {
	results, err := o.merger.FinalizeAll()
	if err != nil {
		o.logger.Error("merge finalize failed", "error", err)
		results = nil
	}

	units := o.queue.Units()
	var never []string
	for _, u := range units {
		// A cancelled unit with no claim timestamp never reached a slot.
		if u.Status == workunit.StatusCancelled && u.ClaimedAt == nil {
			never = append(never, u.ID)
		}
	}

	return &Report{
		RunID:          o.state.RunID(),
		Status:         o.state.Status(),
		AbortReason:    o.state.AbortReason(),
		StartedAt:      o.state.StartedAt(),
		FinishedAt:     o.state.FinishedAt(),
		Units:          units,
		NeverAttempted: never,
		Counts:         o.queue.Counts(),
		Failures:       o.brk.Snapshot(),
		Results:        results,
	}
}
