package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/fanout/internal/breaker"
	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/executor"
	"github.com/Iron-Ham/fanout/internal/merge"
	"github.com/Iron-Ham/fanout/internal/testutil"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// harness wires a runner to a shared queue, breaker, merger and bus.
type harness struct {
	exec   *testutil.ScriptedExecutor
	queue  *workunit.Queue
	brk    *breaker.Breaker
	merger *merge.Merger
	bus    *event.Bus
	runner *Runner
}

func newHarness(t *testing.T, opts Options, units ...workunit.Unit) *harness {
	t.Helper()

	h := &harness{
		exec:   testutil.NewScriptedExecutor(),
		queue:  workunit.NewQueue(),
		brk:    breaker.New(breaker.Config{}, breaker.Callbacks{}, nil),
		merger: merge.NewMerger(nil, nil),
		bus:    event.NewBus(),
	}
	if err := h.queue.Enqueue(units, 0); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	h.merger.RegisterUnits(units)
	h.runner = New(opts, Deps{
		Executor: h.exec,
		Queue:    h.queue,
		Breaker:  h.brk,
		Merger:   h.merger,
		Bus:      h.bus,
		Logger:   nil,
	})
	return h
}

// claim pulls the next ready unit or fails the test.
func (h *harness) claim(t *testing.T) *workunit.Unit {
	t.Helper()
	unit, ok := h.queue.NextReady()
	if !ok {
		t.Fatal("NextReady() returned no unit")
	}
	return unit
}

func unitSpec(id string) workunit.Unit {
	return workunit.Unit{ID: id, Description: id, Category: "review"}
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, unitSpec("u-1"))
	h.exec.Script("u-1", testutil.Succeed("tighten input checks"))

	status := h.runner.Run(context.Background(), h.claim(t))

	if status != workunit.StatusSucceeded {
		t.Fatalf("Run() = %v, want %v", status, workunit.StatusSucceeded)
	}

	got, _ := h.queue.Get("u-1")
	if got.Status != workunit.StatusSucceeded {
		t.Errorf("queue status = %v, want succeeded", got.Status)
	}
	if len(got.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(got.Attempts))
	}
	if got.Attempts[0].Output != "tighten input checks" {
		t.Errorf("attempt output = %q", got.Attempts[0].Output)
	}

	result, err := h.merger.Finalize("review")
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].Text != "tighten input checks" {
		t.Errorf("merged findings = %+v", result.Findings)
	}
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	h := newHarness(t, Options{
		MaxRetries: 3,
		Backoff:    []time.Duration{5 * time.Millisecond, 10 * time.Millisecond},
	}, unitSpec("u-1"))
	h.exec.Script("u-1",
		testutil.Timeout(),
		testutil.Timeout(),
		testutil.Succeed("ok"),
	)

	var retries atomic.Int32
	h.bus.Subscribe(event.TypeUnitRetrying, func(event.Event) {
		retries.Add(1)
	})

	start := time.Now()
	status := h.runner.Run(context.Background(), h.claim(t))
	elapsed := time.Since(start)

	if status != workunit.StatusSucceeded {
		t.Fatalf("Run() = %v, want succeeded", status)
	}
	if got := h.exec.Calls("u-1"); got != 3 {
		t.Errorf("executor calls = %d, want 3", got)
	}
	if got := retries.Load(); got != 2 {
		t.Errorf("retry events = %d, want 2", got)
	}
	// Two backoffs: 5ms then 10ms.
	if elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 15ms of backoff", elapsed)
	}

	got, _ := h.queue.Get("u-1")
	if len(got.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(got.Attempts))
	}
	if got.Attempts[0].Outcome != workunit.OutcomeTimeout {
		t.Errorf("first attempt outcome = %v, want timeout", got.Attempts[0].Outcome)
	}
	if got.Attempts[2].Outcome != workunit.OutcomeSuccess {
		t.Errorf("last attempt outcome = %v, want success", got.Attempts[2].Outcome)
	}
}

func TestRun_ExhaustsRetries(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 2, Backoff: []time.Duration{time.Millisecond}}, unitSpec("u-1"))
	h.exec.Script("u-1", testutil.Transient("connection reset"))

	status := h.runner.Run(context.Background(), h.claim(t))

	if status != workunit.StatusFailed {
		t.Fatalf("Run() = %v, want failed", status)
	}
	if got := h.exec.Calls("u-1"); got != 3 {
		t.Errorf("executor calls = %d, want maxRetries+1 = 3", got)
	}

	snap := h.brk.Snapshot()
	if snap.Cumulative != 1 {
		t.Errorf("breaker cumulative = %d, want 1 (one failed unit, not one per attempt)", snap.Cumulative)
	}

	// The failed unit still counts toward the category so it can finalize.
	result, err := h.merger.Finalize("review")
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if result.UnitsSucceeded != 0 || result.UnitsTotal != 1 {
		t.Errorf("completeness accounting = %d/%d, want 0/1", result.UnitsSucceeded, result.UnitsTotal)
	}
}

func TestRun_FatalSkipsRetries(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 5, Backoff: []time.Duration{time.Millisecond}}, unitSpec("u-1"))
	h.exec.Script("u-1", testutil.Fatal("unit description rejected"))

	var fatal atomic.Bool
	h.bus.Subscribe(event.TypeUnitFailed, func(e event.Event) {
		if failed, ok := e.(event.UnitFailedEvent); ok {
			fatal.Store(failed.Fatal)
		}
	})

	status := h.runner.Run(context.Background(), h.claim(t))

	if status != workunit.StatusFailed {
		t.Fatalf("Run() = %v, want failed", status)
	}
	if got := h.exec.Calls("u-1"); got != 1 {
		t.Errorf("executor calls = %d, want 1 (fatal is never retried)", got)
	}
	if !fatal.Load() {
		t.Error("failed event not marked fatal")
	}
}

func TestRun_AttemptTimeoutClassified(t *testing.T) {
	h := newHarness(t, Options{UnitTimeout: 20 * time.Millisecond, MaxRetries: 0}, unitSpec("u-1"))
	h.exec.Script("u-1", testutil.Hang())

	status := h.runner.Run(context.Background(), h.claim(t))

	if status != workunit.StatusFailed {
		t.Fatalf("Run() = %v, want failed", status)
	}
	got, _ := h.queue.Get("u-1")
	if got.Attempts[0].Outcome != workunit.OutcomeTimeout {
		t.Errorf("attempt outcome = %v, want timeout", got.Attempts[0].Outcome)
	}
}

func TestRun_CancelDuringAttempt(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, unitSpec("u-1"))
	h.exec.Script("u-1", testutil.Hang())

	ctx, cancel := context.WithCancel(context.Background())
	unit := h.claim(t)

	done := make(chan workunit.Status, 1)
	go func() { done <- h.runner.Run(ctx, unit) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case status := <-done:
		if status != workunit.StatusCancelled {
			t.Fatalf("Run() = %v, want cancelled", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	snap := h.brk.Snapshot()
	if snap.Cumulative != 0 {
		t.Errorf("breaker cumulative = %d, cancellation must not count as failure", snap.Cumulative)
	}
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3, Backoff: []time.Duration{time.Hour}}, unitSpec("u-1"))
	h.exec.Script("u-1", testutil.Transient("flaky"))

	ctx, cancel := context.WithCancel(context.Background())
	unit := h.claim(t)

	done := make(chan workunit.Status, 1)
	go func() { done <- h.runner.Run(ctx, unit) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case status := <-done:
		if status != workunit.StatusCancelled {
			t.Fatalf("Run() = %v, want cancelled", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel during backoff")
	}

	if got := h.exec.Calls("u-1"); got != 1 {
		t.Errorf("executor calls = %d, want 1 (no redispatch after cancel)", got)
	}
}

func TestRun_BackoffSequenceClamps(t *testing.T) {
	opts := Options{Backoff: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 4 * time.Second},
		{attempt: 9, want: 4 * time.Second},
	}
	for _, tt := range tests {
		if got := opts.backoffFor(tt.attempt); got != tt.want {
			t.Errorf("backoffFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if got := (Options{}).backoffFor(1); got != 0 {
		t.Errorf("backoffFor with empty sequence = %v, want 0", got)
	}
}

func TestRun_SuccessResetsBreakerStreak(t *testing.T) {
	units := []workunit.Unit{unitSpec("u-1"), unitSpec("u-2")}
	h := newHarness(t, Options{MaxRetries: 0}, units...)
	h.exec.Script("u-1", testutil.Fatal("bad unit"))
	h.exec.Script("u-2", testutil.Succeed("ok"))

	h.runner.Run(context.Background(), h.claim(t))
	h.runner.Run(context.Background(), h.claim(t))

	snap := h.brk.Snapshot()
	if snap.Consecutive != 0 {
		t.Errorf("consecutive = %d, want 0 after success", snap.Consecutive)
	}
	if snap.Cumulative != 1 {
		t.Errorf("cumulative = %d, want 1", snap.Cumulative)
	}
}

func TestRun_UnclassifiedErrorRetries(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 1}, unitSpec("u-1"))
	h.exec.Script("u-1",
		testutil.Step{Err: executor.NewTransient("plain failure", nil)},
		testutil.Succeed("ok"),
	)

	status := h.runner.Run(context.Background(), h.claim(t))

	if status != workunit.StatusSucceeded {
		t.Fatalf("Run() = %v, want succeeded after retry", status)
	}
	if got := h.exec.Calls("u-1"); got != 2 {
		t.Errorf("executor calls = %d, want 2", got)
	}
}
