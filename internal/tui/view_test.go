package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

func TestStatusGlyph(t *testing.T) {
	tests := []struct {
		status workunit.Status
		want   string
	}{
		{workunit.StatusPending, "○"},
		{workunit.StatusRunning, "▶"},
		{workunit.StatusRetrying, "↻"},
		{workunit.StatusSucceeded, "✓"},
		{workunit.StatusFailed, "✗"},
		{workunit.StatusCancelled, "⊘"},
	}

	for _, tt := range tests {
		if got := statusGlyph(tt.status); got != tt.want {
			t.Errorf("statusGlyph(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestFitUnitsUnderBudget(t *testing.T) {
	units := []progress.UnitProgress{
		{ID: "a", Status: workunit.StatusSucceeded},
		{ID: "b", Status: workunit.StatusRunning},
	}

	kept, hidden := fitUnits(units, 5)
	if len(kept) != 2 {
		t.Fatalf("expected all 2 units kept, got %d", len(kept))
	}
	if hidden != 0 {
		t.Errorf("expected 0 hidden, got %d", hidden)
	}
	if kept[0].ID != "a" || kept[1].ID != "b" {
		t.Errorf("expected registration order preserved, got %q then %q", kept[0].ID, kept[1].ID)
	}
}

func TestFitUnitsKeepsActiveWork(t *testing.T) {
	units := []progress.UnitProgress{
		{ID: "done-1", Status: workunit.StatusSucceeded},
		{ID: "run-1", Status: workunit.StatusRunning},
		{ID: "done-2", Status: workunit.StatusSucceeded},
		{ID: "fail-1", Status: workunit.StatusFailed},
		{ID: "pend-1", Status: workunit.StatusPending},
		{ID: "retry-1", Status: workunit.StatusRetrying},
	}

	kept, hidden := fitUnits(units, 3)
	if len(kept) != 3 {
		t.Fatalf("expected 3 units kept, got %d", len(kept))
	}
	if hidden != 3 {
		t.Errorf("expected 3 hidden, got %d", hidden)
	}

	want := []string{"run-1", "fail-1", "retry-1"}
	for i, id := range want {
		if kept[i].ID != id {
			t.Errorf("kept[%d] = %q, want %q", i, kept[i].ID, id)
		}
	}
}

func TestFitUnitsFillsBudgetWithQueuedRows(t *testing.T) {
	units := []progress.UnitProgress{
		{ID: "pend-1", Status: workunit.StatusPending},
		{ID: "run-1", Status: workunit.StatusRunning},
		{ID: "pend-2", Status: workunit.StatusPending},
		{ID: "pend-3", Status: workunit.StatusPending},
	}

	kept, hidden := fitUnits(units, 3)
	if len(kept) != 3 {
		t.Fatalf("expected 3 units kept, got %d", len(kept))
	}
	if hidden != 1 {
		t.Errorf("expected 1 hidden, got %d", hidden)
	}

	// The running unit survives and the rest fill in registration order.
	want := []string{"pend-1", "run-1", "pend-2"}
	for i, id := range want {
		if kept[i].ID != id {
			t.Errorf("kept[%d] = %q, want %q", i, kept[i].ID, id)
		}
	}
}

func TestFmtDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{1500 * time.Millisecond, "1.5s"},
		{12340 * time.Millisecond, "12.3s"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		if got := fmtDuration(tt.d); got != tt.want {
			t.Errorf("fmtDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"a-very-long-unit-id", 10, "a-very-lo…"},
		{"ab", 1, "a"},
	}

	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestRenderUnitRow(t *testing.T) {
	row := renderUnitRow(progress.UnitProgress{
		ID:        "lint-config",
		Category:  "checks",
		Status:    workunit.StatusFailed,
		LastError: "exit status 1",
	})

	if !strings.Contains(row, "lint-config") {
		t.Errorf("expected row to contain unit id, got %q", row)
	}
	if !strings.Contains(row, "exit status 1") {
		t.Errorf("expected row to contain failure reason, got %q", row)
	}
	if !strings.Contains(row, "✗") {
		t.Errorf("expected row to contain failed glyph, got %q", row)
	}
}

func TestUnitDetailByStatus(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)
	finished := started.Add(1500 * time.Millisecond)

	tests := []struct {
		name string
		unit progress.UnitProgress
		want string
	}{
		{
			name: "pending is blank",
			unit: progress.UnitProgress{Status: workunit.StatusPending},
			want: "",
		},
		{
			name: "retrying shows attempt and reason",
			unit: progress.UnitProgress{Status: workunit.StatusRetrying, Attempt: 2, LastError: "connection reset"},
			want: "retry 2: connection reset",
		},
		{
			name: "succeeded shows elapsed",
			unit: progress.UnitProgress{Status: workunit.StatusSucceeded, StartedAt: started, FinishedAt: finished},
			want: "1.5s",
		},
		{
			name: "failed shows reason",
			unit: progress.UnitProgress{Status: workunit.StatusFailed, LastError: "boom"},
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unitDetail(tt.unit); got != tt.want {
				t.Errorf("unitDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderCounts(t *testing.T) {
	m := Model{snap: progress.Snapshot{
		Total:     10,
		Completed: 4,
		Succeeded: 3,
		Failed:    1,
		Running:   2,
		Pending:   4,
	}}

	got := m.renderCounts()
	for _, want := range []string{"4/10 units", "3 ok", "1 failed", "2 running", "4 pending"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected counts to contain %q, got %q", want, got)
		}
	}
	if strings.Contains(got, "retrying") {
		t.Errorf("expected no retrying tally at zero, got %q", got)
	}
}

func TestRenderCountsIncludesRetryingWhenNonZero(t *testing.T) {
	m := Model{snap: progress.Snapshot{Total: 2, Retrying: 1, Pending: 1}}

	if got := m.renderCounts(); !strings.Contains(got, "1 retrying") {
		t.Errorf("expected retrying tally, got %q", got)
	}
}

func TestViewBeforeFirstWindowSize(t *testing.T) {
	m := newModel(New(Options{RunID: "r1"}), "r1")

	if got := m.View(); !strings.Contains(got, "Starting") {
		t.Errorf("expected placeholder before first resize, got %q", got)
	}
}

func TestViewShowsPausePrompt(t *testing.T) {
	m := newModel(New(Options{RunID: "r1"}), "r1")
	m.ready = true
	m.width = 80
	m.height = 24
	m.pause = &pausePrompt{failures: 3, resp: make(chan bool, 1)}

	got := m.View()
	if !strings.Contains(got, "paused after 3 consecutive failures") {
		t.Errorf("expected pause banner, got %q", got)
	}
	if !strings.Contains(got, "[c] continue") || !strings.Contains(got, "[a] abort") {
		t.Errorf("expected decision key hints, got %q", got)
	}
}

func TestViewShowsRunID(t *testing.T) {
	m := newModel(New(Options{RunID: "3f2a9c1e"}), "3f2a9c1e")
	m.ready = true
	m.width = 80
	m.height = 24

	if got := m.View(); !strings.Contains(got, "3f2a9c1e") {
		t.Errorf("expected run id in header, got %q", got)
	}
}
