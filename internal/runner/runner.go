// Package runner drives a single claimed work unit to a terminal status:
// it executes attempts against the configured executor, applies the retry
// policy with backoff between attempts, and reports every transition to
// the queue, the circuit breaker, the event bus, and the result merger.
package runner

import (
	"context"
	"time"

	"github.com/Iron-Ham/fanout/internal/breaker"
	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/executor"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/merge"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// Options holds the retry policy applied to every unit.
type Options struct {
	// UnitTimeout bounds each attempt. Zero means no per-attempt deadline.
	UnitTimeout time.Duration

	// MaxRetries is how many times a failed attempt may be retried.
	// Total attempts are therefore MaxRetries+1.
	MaxRetries int

	// Backoff is the wait between attempts, indexed by attempt number.
	// The last entry repeats once the sequence is exhausted.
	Backoff []time.Duration
}

// backoffFor returns the wait after the given 1-based attempt failed.
func (o Options) backoffFor(attempt int) time.Duration {
	if len(o.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(o.Backoff) {
		idx = len(o.Backoff) - 1
	}
	return o.Backoff[idx]
}

// Deps are the collaborators a runner reports to. Executor and Queue are
// required; the rest may be nil when the caller does not need them.
type Deps struct {
	Executor executor.Executor
	Queue    *workunit.Queue
	Breaker  *breaker.Breaker
	Merger   *merge.Merger
	Bus      *event.Bus
	Logger   *logging.Logger
}

// Runner executes claimed units one at a time. A single runner is shared
// across slots; it holds no per-unit state.
type Runner struct {
	opts Options
	deps Deps
}

// New creates a runner with the given retry policy.
func New(opts Options, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}
	return &Runner{opts: opts, deps: deps}
}

// Run executes one claimed unit until it reaches a terminal status and
// returns that status. The unit must already be in the running state.
// Cancelling ctx stops the unit at the next opportunity and marks it
// cancelled; cancelled outcomes do not feed the circuit breaker.
func (r *Runner) Run(ctx context.Context, unit *workunit.Unit) workunit.Status {
	logger := r.deps.Logger.WithUnit(unit.ID)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		r.publish(event.NewUnitDispatchedEvent(unit.ID, unit.Phase, unit.Category, attempt))
		logger.Info("attempt started", "attempt", attempt, "phase", unit.Phase)

		record, err := r.execute(ctx, unit, attempt)

		if ctx.Err() != nil {
			return r.cancel(unit, logger)
		}
		if err == nil {
			return r.succeed(unit, record, time.Since(start), logger)
		}

		kind := executor.Classify(err)
		if kind != executor.KindFatal && attempt <= r.opts.MaxRetries {
			if !r.retry(ctx, unit, record, logger) {
				return r.cancel(unit, logger)
			}
			continue
		}

		return r.fail(unit, record, kind == executor.KindFatal, logger)
	}
}

// execute performs one attempt and returns its record alongside the raw
// executor error, which the caller classifies for the retry decision.
func (r *Runner) execute(ctx context.Context, unit *workunit.Unit, attempt int) (workunit.Attempt, error) {
	attemptCtx := ctx
	if r.opts.UnitTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.opts.UnitTimeout)
		defer cancel()
	}

	record := workunit.Attempt{Number: attempt, Start: time.Now()}
	output, err := r.deps.Executor.Execute(attemptCtx, unit.Description)
	record.End = time.Now()

	switch {
	case err == nil:
		record.Outcome = workunit.OutcomeSuccess
		record.Output = output
	case executor.Classify(err) == executor.KindTimeout:
		record.Outcome = workunit.OutcomeTimeout
		record.Error = err.Error()
	default:
		record.Outcome = workunit.OutcomeError
		record.Error = err.Error()
	}
	return record, err
}

func (r *Runner) succeed(unit *workunit.Unit, record workunit.Attempt, elapsed time.Duration, logger *logging.Logger) workunit.Status {
	// The breaker hears the outcome before the queue marks the unit
	// terminal. Marking terminal frees a dispatch slot, and a tripped
	// breaker must already be visible by then.
	if r.deps.Breaker != nil {
		r.deps.Breaker.OnOutcome(true)
	}
	if err := r.deps.Queue.MarkSucceeded(unit.ID, record); err != nil {
		logger.Error("queue rejected success", "error", err)
	}
	if r.deps.Merger != nil {
		if err := r.deps.Merger.Ingest(unit.ID, unit.Category, record.Output); err != nil {
			logger.Error("merger rejected output", "error", err)
		}
	}
	r.publish(event.NewUnitSucceededEvent(unit.ID, unit.Category, record.Number, elapsed))

	logger.Info("unit succeeded", "attempts", record.Number)
	return workunit.StatusSucceeded
}

// retry records the failed attempt, waits out the backoff, and redispatches.
// It returns false when ctx was cancelled during the wait.
func (r *Runner) retry(ctx context.Context, unit *workunit.Unit, record workunit.Attempt, logger *logging.Logger) bool {
	backoff := r.opts.backoffFor(record.Number)

	if err := r.deps.Queue.MarkRetrying(unit.ID, record); err != nil {
		logger.Error("queue rejected retry", "error", err)
	}
	r.publish(event.NewUnitRetryingEvent(unit.ID, record.Number, backoff, record.Error))
	logger.Warn("attempt failed, retrying",
		"attempt", record.Number,
		"backoff", backoff,
		"reason", record.Error,
	)

	if err := sleep(ctx, backoff); err != nil {
		return false
	}
	if err := r.deps.Queue.Redispatch(unit.ID); err != nil {
		logger.Error("queue rejected redispatch", "error", err)
	}
	return true
}

func (r *Runner) fail(unit *workunit.Unit, record workunit.Attempt, fatal bool, logger *logging.Logger) workunit.Status {
	// Breaker first, then the terminal mark, same as succeed.
	if r.deps.Breaker != nil {
		r.deps.Breaker.OnOutcome(false)
	}
	if err := r.deps.Queue.MarkFailed(unit.ID, record); err != nil {
		logger.Error("queue rejected failure", "error", err)
	}
	if r.deps.Merger != nil {
		if err := r.deps.Merger.IngestFailure(unit.ID, unit.Category); err != nil {
			logger.Error("merger rejected failure", "error", err)
		}
	}
	r.publish(event.NewUnitFailedEvent(unit.ID, unit.Category, record.Number, record.Error, fatal))

	logger.Error("unit failed", "attempts", record.Number, "fatal", fatal, "reason", record.Error)
	return workunit.StatusFailed
}

func (r *Runner) cancel(unit *workunit.Unit, logger *logging.Logger) workunit.Status {
	if err := r.deps.Queue.MarkCancelled(unit.ID); err != nil {
		logger.Error("queue rejected cancellation", "error", err)
	}
	if r.deps.Merger != nil {
		if err := r.deps.Merger.IngestFailure(unit.ID, unit.Category); err != nil {
			logger.Error("merger rejected cancellation", "error", err)
		}
	}
	r.publish(event.NewUnitCancelledEvent(unit.ID, true))

	logger.Warn("unit cancelled")
	return workunit.StatusCancelled
}

func (r *Runner) publish(e event.Event) {
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(e)
	}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
