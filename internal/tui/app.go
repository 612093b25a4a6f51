// Package tui renders a live dashboard for a single orchestration run. The
// dashboard polls the progress reporter for snapshots and answers circuit
// breaker pause prompts from the keyboard.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/fanout/internal/progress"
)

// defaultRefresh paces snapshot polling when Options.Refresh is unset.
const defaultRefresh = 100 * time.Millisecond

// Options configure the dashboard.
type Options struct {
	RunID   string
	Refresh time.Duration // Snapshot poll interval
}

// App wraps the Bubbletea program.
type App struct {
	program *tea.Program
	refresh time.Duration

	// rep is set once by Attach before Run starts and only read from the
	// program goroutine afterwards.
	rep *progress.Reporter
}

// New creates the dashboard application. Attach must be called before Run.
func New(opts Options) *App {
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	a := &App{refresh: refresh}
	a.program = tea.NewProgram(
		newModel(a, opts.RunID),
		tea.WithAltScreen(),
	)
	return a
}

// Attach wires in the reporter the dashboard polls.
func (a *App) Attach(rep *progress.Reporter) {
	a.rep = rep
}

// Run starts the dashboard and blocks until it exits.
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}

// Done tells the dashboard the run is over so it can exit after a final
// frame. Safe to call after the program has already quit.
func (a *App) Done() {
	// Send blocks until the program collects the message, so it runs on its
	// own goroutine in case the run finished before the program started.
	go a.program.Send(runDoneMsg{})
}

// Decide asks the operator whether a paused run should continue. It blocks
// until a key answers the prompt or ctx is cancelled; cancellation declines.
func (a *App) Decide(ctx context.Context, consecutive int) bool {
	resp := make(chan bool, 1)
	go a.program.Send(pauseRequestMsg{failures: consecutive, resp: resp})

	select {
	case answer := <-resp:
		return answer
	case <-ctx.Done():
		return false
	}
}

// Messages

type tickMsg time.Time

// pauseRequestMsg carries a pause prompt into the update loop. The answer is
// sent on resp, which is buffered so the reply never blocks rendering.
type pauseRequestMsg struct {
	failures int
	resp     chan bool
}

type runDoneMsg struct{}

// Commands

func tick(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
