package progress

import (
	"testing"
	"time"

	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

func registerUnits(r *Reporter, ids ...string) {
	units := make([]workunit.Unit, 0, len(ids))
	for _, id := range ids {
		units = append(units, workunit.Unit{ID: id, Category: "general"})
	}
	r.Register(units)
}

func TestReporter_LifecycleUpdates(t *testing.T) {
	bus := event.NewBus()
	r := NewReporter(bus)
	registerUnits(r, "u1", "u2", "u3")

	snap := r.Snapshot()
	if snap.Total != 3 || snap.Pending != 3 {
		t.Fatalf("initial snapshot = %+v, want 3 pending of 3", snap)
	}

	bus.Publish(event.NewUnitDispatchedEvent("u1", 0, "security", 1))
	bus.Publish(event.NewUnitDispatchedEvent("u2", 0, "security", 1))
	bus.Publish(event.NewUnitRetryingEvent("u2", 1, time.Second, "timeout"))
	bus.Publish(event.NewUnitSucceededEvent("u1", "security", 1, 2*time.Second))

	snap = r.Snapshot()
	if snap.Running != 0 {
		t.Errorf("Running = %d, want 0", snap.Running)
	}
	if snap.Retrying != 1 {
		t.Errorf("Retrying = %d, want 1", snap.Retrying)
	}
	if snap.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", snap.Succeeded)
	}
	if snap.Pending != 1 {
		t.Errorf("Pending = %d, want 1", snap.Pending)
	}
	if snap.Completed != 1 {
		t.Errorf("Completed = %d, want 1", snap.Completed)
	}
	if snap.IsComplete() {
		t.Error("run should not be complete")
	}

	rows := map[string]UnitProgress{}
	for _, u := range snap.PerUnit {
		rows[u.ID] = u
	}
	if rows["u1"].Status != workunit.StatusSucceeded {
		t.Errorf("u1 status = %s, want succeeded", rows["u1"].Status)
	}
	if rows["u1"].FinishedAt.IsZero() {
		t.Error("u1 should have FinishedAt set")
	}
	if rows["u2"].Status != workunit.StatusRetrying {
		t.Errorf("u2 status = %s, want retrying", rows["u2"].Status)
	}
	if rows["u2"].LastError != "timeout" {
		t.Errorf("u2 LastError = %q, want timeout", rows["u2"].LastError)
	}
	if rows["u3"].Status != workunit.StatusPending {
		t.Errorf("u3 status = %s, want pending", rows["u3"].Status)
	}
	if rows["u3"].Elapsed() != 0 {
		t.Errorf("pending unit Elapsed = %v, want 0", rows["u3"].Elapsed())
	}
}

func TestReporter_DispatchKeepsFirstStart(t *testing.T) {
	bus := event.NewBus()
	r := NewReporter(bus)
	registerUnits(r, "u1")

	bus.Publish(event.NewUnitDispatchedEvent("u1", 0, "general", 1))
	first := r.Snapshot().PerUnit[0].StartedAt

	// A re-dispatch after backoff must not reset the unit's clock.
	bus.Publish(event.NewUnitRetryingEvent("u1", 1, time.Second, "timeout"))
	bus.Publish(event.NewUnitDispatchedEvent("u1", 0, "general", 2))

	row := r.Snapshot().PerUnit[0]
	if !row.StartedAt.Equal(first) {
		t.Errorf("StartedAt moved from %v to %v on re-dispatch", first, row.StartedAt)
	}
	if row.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", row.Attempt)
	}
}

func TestReporter_RunTransitions(t *testing.T) {
	bus := event.NewBus()
	r := NewReporter(bus)
	registerUnits(r, "u1")

	bus.Publish(event.NewRunPausedEvent(3))
	if snap := r.Snapshot(); !snap.Paused {
		t.Error("snapshot should show paused")
	}

	bus.Publish(event.NewRunResumedEvent())
	if snap := r.Snapshot(); snap.Paused {
		t.Error("snapshot should show resumed")
	}

	bus.Publish(event.NewRunAbortedEvent(10, "cumulative threshold"))
	snap := r.Snapshot()
	if !snap.Aborted {
		t.Error("snapshot should show aborted")
	}
	if snap.EndTime.IsZero() {
		t.Error("aborted run should have EndTime set")
	}
}

func TestReporter_CompletionAccounting(t *testing.T) {
	bus := event.NewBus()
	r := NewReporter(bus)
	registerUnits(r, "u1", "u2", "u3", "u4")

	bus.Publish(event.NewUnitSucceededEvent("u1", "a", 1, time.Second))
	bus.Publish(event.NewUnitSucceededEvent("u2", "a", 2, time.Second))
	bus.Publish(event.NewUnitFailedEvent("u3", "b", 4, "exhausted", false))
	bus.Publish(event.NewUnitCancelledEvent("u4", false))
	bus.Publish(event.NewRunCompletedEvent(2, 1, 5*time.Second))

	snap := r.Snapshot()
	if !snap.IsComplete() {
		t.Fatalf("run should be complete: %+v", snap)
	}
	if snap.Completed != 4 {
		t.Errorf("Completed = %d, want 4", snap.Completed)
	}
	if got := snap.SuccessRate(); got != 0.5 {
		t.Errorf("SuccessRate() = %v, want 0.5", got)
	}
	if got := snap.PercentComplete(); got != 1.0 {
		t.Errorf("PercentComplete() = %v, want 1.0", got)
	}
	if snap.EndTime.IsZero() {
		t.Error("completed run should have EndTime set")
	}
}

func TestReporter_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	bus := event.NewBus()
	r := NewReporter(bus)
	registerUnits(r, "u1")

	// Subscribe and never read: publishing far more events than the buffer
	// holds must still return promptly.
	_ = r.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			bus.Publish(event.NewUnitDispatchedEvent("u1", 0, "general", 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
}

func TestReporter_SubscribeReceivesEvents(t *testing.T) {
	bus := event.NewBus()
	r := NewReporter(bus)
	registerUnits(r, "u1")

	ch := r.Subscribe()
	bus.Publish(event.NewUnitSucceededEvent("u1", "a", 1, time.Second))

	select {
	case e := <-ch:
		if e.EventType() != event.TypeUnitSucceeded {
			t.Errorf("received %s, want %s", e.EventType(), event.TypeUnitSucceeded)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the event")
	}

	r.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestReporter_UnregisteredUnitCreatesRow(t *testing.T) {
	bus := event.NewBus()
	r := NewReporter(bus)

	bus.Publish(event.NewUnitDispatchedEvent("surprise", 2, "extra", 1))

	snap := r.Snapshot()
	if snap.Total != 1 {
		t.Fatalf("Total = %d, want 1", snap.Total)
	}
	if snap.PerUnit[0].ID != "surprise" || snap.PerUnit[0].Phase != 2 {
		t.Errorf("row = %+v, want surprise in phase 2", snap.PerUnit[0])
	}
}
