// Package internal contains integration tests that verify the packages
// compose correctly: the event bus, progress reporter, merger, breaker,
// and orchestrator wired together through their public APIs.
package internal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/executor"
	"github.com/Iron-Ham/fanout/internal/orchestrator"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// TestEventBusIntegration tests that the event bus routes typed events to
// their subscribers in publish order, simulating reporter-style consumers.
func TestEventBusIntegration(t *testing.T) {
	bus := event.NewBus()

	var received []event.Event
	var mu sync.Mutex
	collect := func(e event.Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}

	bus.Subscribe(event.TypeUnitDispatched, collect)
	bus.Subscribe(event.TypeUnitSucceeded, collect)
	bus.Subscribe(event.TypeUnitFailed, collect)
	bus.Subscribe(event.TypeRunCompleted, collect)

	bus.Publish(event.NewUnitDispatchedEvent("u1", 1, "checks", 1))
	bus.Publish(event.NewUnitSucceededEvent("u1", "checks", 1, time.Second))
	bus.Publish(event.NewUnitDispatchedEvent("u2", 1, "checks", 1))
	bus.Publish(event.NewUnitFailedEvent("u2", "checks", 2, "exit status 1", false))
	bus.Publish(event.NewRunCompletedEvent(1, 1, 2*time.Second))

	mu.Lock()
	defer mu.Unlock()

	expectedTypes := []string{
		event.TypeUnitDispatched,
		event.TypeUnitSucceeded,
		event.TypeUnitDispatched,
		event.TypeUnitFailed,
		event.TypeRunCompleted,
	}
	if len(received) != len(expectedTypes) {
		t.Fatalf("expected %d events, got %d", len(expectedTypes), len(received))
	}
	for i, want := range expectedTypes {
		if received[i].EventType() != want {
			t.Errorf("event %d: expected type %q, got %q", i, want, received[i].EventType())
		}
	}
}

// TestEventBusWildcardSubscription tests that SubscribeAll sees every event
// type, the way the progress reporter consumes the bus.
func TestEventBusWildcardSubscription(t *testing.T) {
	bus := event.NewBus()

	var types []string
	var mu sync.Mutex
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		types = append(types, e.EventType())
		mu.Unlock()
	})

	bus.Publish(event.NewUnitDispatchedEvent("u1", 1, "general", 1))
	bus.Publish(event.NewUnitRetryingEvent("u1", 1, time.Second, "connection reset"))
	bus.Publish(event.NewUnitCancelledEvent("u2", false))
	bus.Publish(event.NewRunPausedEvent(3))
	bus.Publish(event.NewRunResumedEvent())
	bus.Publish(event.NewRunAbortedEvent(10, "cumulative failure threshold reached"))

	mu.Lock()
	defer mu.Unlock()
	if len(types) != 6 {
		t.Errorf("expected wildcard subscriber to receive 6 events, got %d", len(types))
	}
}

// TestEventBusConcurrentPublish tests that concurrent publishers do not
// race or drop events.
func TestEventBusConcurrentPublish(t *testing.T) {
	bus := event.NewBus()

	var count int
	var mu sync.Mutex
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	const publishers = 100
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bus.Publish(event.NewUnitRetryingEvent("u", n, time.Millisecond, "transient"))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != publishers {
		t.Errorf("expected %d events, got %d", publishers, count)
	}
}

// TestEventBusUnsubscribe tests that an unsubscribed handler stops
// receiving events while remaining handlers keep theirs.
func TestEventBusUnsubscribe(t *testing.T) {
	bus := event.NewBus()

	var count1, count2 int
	var mu sync.Mutex

	id1 := bus.Subscribe(event.TypeRunResumed, func(e event.Event) {
		mu.Lock()
		count1++
		mu.Unlock()
	})
	bus.Subscribe(event.TypeRunResumed, func(e event.Event) {
		mu.Lock()
		count2++
		mu.Unlock()
	})

	bus.Publish(event.NewRunResumedEvent())

	if !bus.Unsubscribe(id1) {
		t.Error("expected Unsubscribe to return true for a live subscription")
	}

	bus.Publish(event.NewRunResumedEvent())

	mu.Lock()
	defer mu.Unlock()
	if count1 != 1 {
		t.Errorf("unsubscribed handler called %d times, want 1", count1)
	}
	if count2 != 2 {
		t.Errorf("remaining handler called %d times, want 2", count2)
	}
}

// TestEventTimestamps tests that every event constructor stamps creation
// time.
func TestEventTimestamps(t *testing.T) {
	before := time.Now()

	events := []event.Event{
		event.NewUnitDispatchedEvent("u", 1, "general", 1),
		event.NewUnitRetryingEvent("u", 1, time.Second, "reason"),
		event.NewUnitSucceededEvent("u", "general", 1, time.Second),
		event.NewUnitFailedEvent("u", "general", 3, "reason", true),
		event.NewUnitCancelledEvent("u", false),
		event.NewRunPausedEvent(3),
		event.NewRunResumedEvent(),
		event.NewRunAbortedEvent(10, "reason"),
		event.NewRunCompletedEvent(5, 1, time.Minute),
	}

	after := time.Now()

	for i, e := range events {
		if e.EventType() == "" {
			t.Errorf("event %d has empty type", i)
		}
		ts := e.Timestamp()
		if ts.Before(before) || ts.After(after) {
			t.Errorf("event %d timestamp %v outside [%v, %v]", i, ts, before, after)
		}
	}
}

// TestReporterTracksBusEvents tests the bus-to-reporter wiring: published
// lifecycle events must show up in pull-based snapshots.
func TestReporterTracksBusEvents(t *testing.T) {
	bus := event.NewBus()
	rep := progress.NewReporter(bus)

	rep.Register([]workunit.Unit{
		{ID: "u1", Phase: 1, Category: "checks", Description: "first"},
		{ID: "u2", Phase: 1, Category: "checks", Description: "second"},
		{ID: "u3", Phase: 2, Category: "recon", Description: "third"},
	})

	bus.Publish(event.NewUnitDispatchedEvent("u1", 1, "checks", 1))
	bus.Publish(event.NewUnitSucceededEvent("u1", "checks", 1, time.Second))
	bus.Publish(event.NewUnitDispatchedEvent("u2", 1, "checks", 1))
	bus.Publish(event.NewUnitRetryingEvent("u2", 1, time.Millisecond, "flaky"))

	snap := rep.Snapshot()
	if snap.Total != 3 {
		t.Errorf("expected 3 tracked units, got %d", snap.Total)
	}
	if snap.Succeeded != 1 {
		t.Errorf("expected 1 succeeded, got %d", snap.Succeeded)
	}
	if snap.Retrying != 1 {
		t.Errorf("expected 1 retrying, got %d", snap.Retrying)
	}
	if snap.Pending != 1 {
		t.Errorf("expected 1 pending, got %d", snap.Pending)
	}
	if snap.IsComplete() {
		t.Error("run should not be complete with units outstanding")
	}
}

// TestOrchestratorEndToEnd runs two phases through the full stack and
// checks phase ordering, merged findings, and the final report.
func TestOrchestratorEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var executed []string
	exec := executor.Func(func(ctx context.Context, description string) (string, error) {
		mu.Lock()
		executed = append(executed, description)
		mu.Unlock()
		return description, nil
	})

	opts := orchestrator.Options{
		MaxParallel:    4,
		UnitTimeout:    5 * time.Second,
		MaxRetries:     1,
		Backoff:        []time.Duration{time.Millisecond},
		AbortThreshold: 10,
	}
	orch, err := orchestrator.New(opts, orchestrator.Deps{Executor: exec})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	phase1 := []workunit.Unit{
		{ID: "scan-a", Category: "checks", Description: "p1: open port 443"},
		{ID: "scan-b", Category: "checks", Description: "p1: open port 443"},
	}
	phase2 := []workunit.Unit{
		{ID: "probe-c", Category: "recon", Description: "p2: service banner nginx"},
	}
	if err := orch.Enqueue(phase1, 1); err != nil {
		t.Fatalf("failed to enqueue phase 1: %v", err)
	}
	if err := orch.Enqueue(phase2, 2); err != nil {
		t.Fatalf("failed to enqueue phase 2: %v", err)
	}

	events := orch.Progress().Subscribe()

	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Status != orchestrator.StatusCompleted {
		t.Errorf("expected completed status, got %s", report.Status)
	}
	if !report.Succeeded() {
		t.Error("expected a fully successful run")
	}
	if report.Counts.Succeeded != 3 {
		t.Errorf("expected 3 succeeded units, got %d", report.Counts.Succeeded)
	}

	// Phase 1 work must finish before phase 2 starts.
	mu.Lock()
	for i, desc := range executed {
		if strings.HasPrefix(desc, "p2") && i < 2 {
			t.Errorf("phase 2 unit executed at position %d, before phase 1 drained", i)
		}
	}
	mu.Unlock()

	// Identical findings from the two phase 1 units collapse into one
	// corroborated finding.
	checks := report.Results["checks"]
	if checks == nil {
		t.Fatal("expected merged result for category checks")
	}
	if len(checks.Findings) != 1 {
		t.Fatalf("expected 1 deduplicated finding, got %d", len(checks.Findings))
	}
	if checks.Findings[0].Corroboration != 1 {
		t.Errorf("expected corroboration 1, got %d", checks.Findings[0].Corroboration)
	}
	if checks.Completeness() != 1.0 {
		t.Errorf("expected full completeness, got %f", checks.Completeness())
	}

	// The subscription stream closes with the run and ends on the
	// completion event.
	var types []string
	for e := range events {
		types = append(types, e.EventType())
	}
	if len(types) == 0 {
		t.Fatal("expected events on the subscription stream")
	}
	if last := types[len(types)-1]; last != event.TypeRunCompleted {
		t.Errorf("expected final event %q, got %q", event.TypeRunCompleted, last)
	}
}

// TestOrchestratorAbortsOnCumulativeFailures tests the breaker integration:
// crossing the abort threshold kills the run and cancels queued units.
func TestOrchestratorAbortsOnCumulativeFailures(t *testing.T) {
	exec := executor.Func(func(ctx context.Context, description string) (string, error) {
		return "", executor.NewTransient("simulated failure", nil)
	})

	opts := orchestrator.Options{
		Sequential:     true,
		UnitTimeout:    5 * time.Second,
		AbortThreshold: 2,
	}
	orch, err := orchestrator.New(opts, orchestrator.Deps{Executor: exec})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	units := []workunit.Unit{
		{ID: "a", Category: "general", Description: "first"},
		{ID: "b", Category: "general", Description: "second"},
		{ID: "c", Category: "general", Description: "third"},
		{ID: "d", Category: "general", Description: "fourth"},
	}
	if err := orch.Enqueue(units, 1); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	events := orch.Progress().Subscribe()

	report, err := orch.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error from an aborted run")
	}
	if !errors.Is(err, errors.ErrRunAborted) {
		t.Errorf("expected ErrRunAborted, got %v", err)
	}

	if report.Status != orchestrator.StatusAborted {
		t.Errorf("expected aborted status, got %s", report.Status)
	}
	if report.Counts.Failed != 2 {
		t.Errorf("expected 2 failed units, got %d", report.Counts.Failed)
	}
	if report.Counts.Cancelled != 2 {
		t.Errorf("expected 2 cancelled units, got %d", report.Counts.Cancelled)
	}
	if len(report.NeverAttempted) != 2 {
		t.Errorf("expected 2 never-attempted units, got %v", report.NeverAttempted)
	}

	var sawAbort, sawCancelled bool
	for e := range events {
		switch e.EventType() {
		case event.TypeRunAborted:
			sawAbort = true
		case event.TypeUnitCancelled:
			sawCancelled = true
		}
	}
	if !sawAbort {
		t.Error("expected a run.aborted event on the stream")
	}
	if !sawCancelled {
		t.Error("expected unit.cancelled events on the stream")
	}
}

// TestOrchestratorPauseDecisionContinues tests the decision wiring: a pause
// answered with continue lets the rest of the run finish.
func TestOrchestratorPauseDecisionContinues(t *testing.T) {
	exec := executor.Func(func(ctx context.Context, description string) (string, error) {
		if strings.HasPrefix(description, "fail") {
			return "", executor.NewTransient("simulated failure", nil)
		}
		return description, nil
	})

	var decided int
	var mu sync.Mutex
	decide := func(ctx context.Context, consecutive int) bool {
		mu.Lock()
		decided++
		mu.Unlock()
		return true
	}

	opts := orchestrator.Options{
		Sequential:     true,
		UnitTimeout:    5 * time.Second,
		PauseThreshold: 1,
	}
	orch, err := orchestrator.New(opts, orchestrator.Deps{Executor: exec, Decide: decide})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	units := []workunit.Unit{
		{ID: "bad", Category: "general", Description: "fail: broken"},
		{ID: "ok-1", Category: "general", Description: "healthy one"},
		{ID: "ok-2", Category: "general", Description: "healthy two"},
	}
	if err := orch.Enqueue(units, 1); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	mu.Lock()
	if decided == 0 {
		t.Error("expected the decision callback to be consulted")
	}
	mu.Unlock()

	if report.Status != orchestrator.StatusCompleted {
		t.Errorf("expected completed status, got %s", report.Status)
	}
	if report.Counts.Succeeded != 2 || report.Counts.Failed != 1 {
		t.Errorf("expected 2 succeeded and 1 failed, got %+v", report.Counts)
	}
}
