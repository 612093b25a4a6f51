package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/orchestrator"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// printEvents renders run events as log lines for --plain mode and
// non-terminal output. It returns when the event channel closes.
func printEvents(w io.Writer, events <-chan event.Event) {
	for e := range events {
		stamp := fmt.Sprintf("%s[%s]%s", colorGray, e.Timestamp().Format("15:04:05"), colorReset)

		switch ev := e.(type) {
		case event.UnitDispatchedEvent:
			fmt.Fprintf(w, "%s %sdispatch%s  %s (phase %d, attempt %d)\n",
				stamp, colorBlue, colorReset, ev.UnitID, ev.Phase, ev.Attempt)
		case event.UnitRetryingEvent:
			fmt.Fprintf(w, "%s %sretrying%s  %s in %s: %s\n",
				stamp, colorYellow, colorReset, ev.UnitID, ev.Backoff, ev.Reason)
		case event.UnitSucceededEvent:
			fmt.Fprintf(w, "%s %ssucceeded%s %s after %d attempt(s) in %s\n",
				stamp, colorGreen, colorReset, ev.UnitID, ev.Attempts, ev.Duration.Round(time.Millisecond))
		case event.UnitFailedEvent:
			kind := "failed"
			if ev.Fatal {
				kind = "failed fatally"
			}
			fmt.Fprintf(w, "%s %s%s%s    %s after %d attempt(s): %s\n",
				stamp, colorRed, kind, colorReset, ev.UnitID, ev.Attempts, ev.Reason)
		case event.UnitCancelledEvent:
			detail := "never attempted"
			if ev.Attempted {
				detail = "in flight"
			}
			fmt.Fprintf(w, "%s %scancelled%s %s (%s)\n",
				stamp, colorGray, colorReset, ev.UnitID, detail)
		case event.RunPausedEvent:
			fmt.Fprintf(w, "%s %srun paused%s after %d consecutive failures\n",
				stamp, colorYellow, colorReset, ev.ConsecutiveFailures)
		case event.RunResumedEvent:
			fmt.Fprintf(w, "%s run resumed\n", stamp)
		case event.RunAbortedEvent:
			fmt.Fprintf(w, "%s %srun aborted%s: %s (%d cumulative failures)\n",
				stamp, colorRed, colorReset, ev.Reason, ev.CumulativeFailures)
		case event.RunCompletedEvent:
			fmt.Fprintf(w, "%s %srun completed%s: %d succeeded, %d failed in %s\n",
				stamp, colorGreen, colorReset, ev.Succeeded, ev.Failed, ev.Duration.Round(time.Millisecond))
		}
	}
}

// writeReport prints the end-of-run accounting: run outcome, per-unit
// tallies, and the merged findings per category.
func writeReport(w io.Writer, r *orchestrator.Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s: %s", r.RunID, r.Status)
	if r.Status == orchestrator.StatusAborted && r.AbortReason != "" {
		fmt.Fprintf(w, " (%s)", r.AbortReason)
	}
	fmt.Fprintln(w)

	c := r.Counts
	fmt.Fprintf(w, "Duration: %s\n", r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Units: %d total, %d succeeded, %d failed, %d cancelled\n",
		c.Total, c.Succeeded, c.Failed, c.Cancelled)

	categories := make([]string, 0, len(r.Results))
	for cat := range r.Results {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		res := r.Results[cat]
		fmt.Fprintf(w, "\n%s (%d/%d units reported):\n", cat, res.UnitsSucceeded, res.UnitsTotal)

		if len(res.Findings) == 0 {
			fmt.Fprintln(w, "  no findings")
		}
		for _, f := range res.Findings {
			if f.Corroboration > 0 {
				fmt.Fprintf(w, "  - %s  [%s, +%d corroborating]\n", f.Text, f.UnitID, f.Corroboration)
			} else {
				fmt.Fprintf(w, "  - %s  [%s]\n", f.Text, f.UnitID)
			}
		}
		for _, con := range res.Contradictions {
			fmt.Fprintf(w, "  %s! conflict:%s %q (%s) vs %q (%s)\n",
				colorYellow, colorReset, con.A.Text, con.A.UnitID, con.B.Text, con.B.UnitID)
		}
	}

	var failed []workunit.Unit
	for _, u := range r.Units {
		if u.Status == workunit.StatusFailed {
			failed = append(failed, u)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(w, "\nFailed units:")
		for _, u := range failed {
			reason := "unknown failure"
			if last, ok := u.LastAttempt(); ok && last.Error != "" {
				reason = last.Error
			}
			fmt.Fprintf(w, "  %s (%d attempts): %s\n", u.ID, len(u.Attempts), reason)
		}
	}

	if len(r.NeverAttempted) > 0 {
		fmt.Fprintln(w, "\nNever attempted:")
		for _, id := range r.NeverAttempted {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
}
