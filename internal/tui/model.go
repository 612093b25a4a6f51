package tui

import (
	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/fanout/internal/progress"
)

// pausePrompt is an unanswered pause decision.
type pausePrompt struct {
	failures int
	resp     chan bool
}

// Model is the Bubbletea model for the run dashboard.
type Model struct {
	app   *App
	runID string

	snap     progress.Snapshot
	finished bool
	pause    *pausePrompt

	spinner spinner.Model
	bar     progressbar.Model

	width    int
	height   int
	ready    bool
	quitting bool
}

func newModel(app *App, runID string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		app:     app,
		runID:   runID,
		spinner: sp,
		bar:     progressbar.New(progressbar.WithDefaultGradient()),
	}
}

// Init starts snapshot polling and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.app.refresh), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeypress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = barWidth(msg.Width)
		m.ready = true
		return m, nil

	case tickMsg:
		m.poll()
		return m, tick(m.app.refresh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pauseRequestMsg:
		m.pause = &pausePrompt{failures: msg.failures, resp: msg.resp}
		m.poll()
		return m, nil

	case runDoneMsg:
		m.finished = true
		m.poll()
		return m, tea.Quit
	}

	return m, nil
}

// handleKeypress processes keyboard input. While a pause prompt is showing
// it captures the decision keys; q always quits.
func (m Model) handleKeypress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pause != nil {
		switch msg.String() {
		case "c", "y", "enter":
			m.answerPause(true)
			return m, nil
		case "a", "n":
			m.answerPause(false)
			return m, nil
		case "q", "ctrl+c":
			m.answerPause(false)
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// answerPause resolves the pending prompt and clears it.
func (m *Model) answerPause(continueRun bool) {
	if m.pause == nil {
		return
	}
	m.pause.resp <- continueRun
	m.pause = nil
}

// poll refreshes the snapshot from the attached reporter.
func (m *Model) poll() {
	if m.app.rep != nil {
		m.snap = m.app.rep.Snapshot()
	}
}
