package orchestrator

import (
	"time"

	"github.com/Iron-Ham/fanout/internal/breaker"
	"github.com/Iron-Ham/fanout/internal/merge"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// Report is the final accounting of a run. It is produced whether the
// run completed or aborted, so callers always see where every unit
// ended up.
type Report struct {
	// RunID identifies the run across logs and events.
	RunID string

	// Status is the terminal run status, Completed or Aborted.
	Status RunStatus

	// AbortReason is set when Status is Aborted.
	AbortReason string

	StartedAt  time.Time
	FinishedAt time.Time

	// Units holds a terminal snapshot of every unit in submission
	// order, attempt history included.
	Units []workunit.Unit

	// NeverAttempted lists units that were cancelled before any slot
	// claimed them.
	NeverAttempted []string

	// Counts aggregates unit statuses at the end of the run.
	Counts workunit.Counts

	// Failures is the breaker's closing view of the failure counters.
	Failures breaker.Snapshot

	// Results maps category to its merged findings. Categories that
	// could not be finalized are absent.
	Results map[string]*merge.Result
}

// Duration is the wall-clock span of the run.
func (r *Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether every unit finished successfully.
func (r *Report) Succeeded() bool {
	return r.Status == StatusCompleted && r.Counts.Failed == 0 && r.Counts.Cancelled == 0
}
