package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// Layout constants
const (
	maxBarWidth    = 60
	barWidthMargin = 4  // Horizontal padding around the progress bar
	chromeHeight   = 10 // Header, summary, banner, and help rows
	minUnitRows    = 3
	unitIDWidth    = 24
)

// barWidth clamps the progress bar to the terminal width.
func barWidth(termWidth int) int {
	w := termWidth - barWidthMargin
	if w > maxBarWidth {
		w = maxBarWidth
	}
	if w < 10 {
		w = 10
	}
	return w
}

// View renders the dashboard.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}

	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderSummary())
	b.WriteString("\n\n")
	b.WriteString(m.renderUnits())

	if m.pause != nil {
		b.WriteString("\n\n")
		b.WriteString(m.renderPausePrompt())
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

// renderHeader renders the title bar with the run identifier.
func (m Model) renderHeader() string {
	return headerStyle.Width(m.width).Render("fanout run " + m.runID)
}

// renderSummary renders the progress bar and the aggregate counts line.
func (m Model) renderSummary() string {
	s := m.snap

	var b strings.Builder
	b.WriteString(m.bar.ViewAs(s.PercentComplete()))
	b.WriteString("\n")
	b.WriteString(m.renderState())
	b.WriteString("  ")
	b.WriteString(m.renderCounts())
	return b.String()
}

// renderState renders the run-level phase of life.
func (m Model) renderState() string {
	switch {
	case m.snap.Aborted:
		return errorStyle.Render("aborted")
	case m.finished:
		return successStyle.Render("done")
	case m.pause != nil || m.snap.Paused:
		return warnStyle.Render("paused")
	default:
		return m.spinner.View() + "running"
	}
}

// renderCounts renders the aggregate unit tallies. Retrying and cancelled
// appear only when non-zero.
func (m Model) renderCounts() string {
	s := m.snap

	parts := []string{
		fmt.Sprintf("%d/%d units", s.Completed, s.Total),
		successStyle.Render(fmt.Sprintf("%d ok", s.Succeeded)),
		errorStyle.Render(fmt.Sprintf("%d failed", s.Failed)),
		fmt.Sprintf("%d running", s.Running),
		fmt.Sprintf("%d pending", s.Pending),
	}
	if s.Retrying > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d retrying", s.Retrying)))
	}
	if s.Cancelled > 0 {
		parts = append(parts, mutedStyle.Render(fmt.Sprintf("%d cancelled", s.Cancelled)))
	}
	parts = append(parts, mutedStyle.Render(fmtDuration(s.Duration())))

	return strings.Join(parts, "  ")
}

// renderUnits renders one row per unit, trimmed to the terminal height.
func (m Model) renderUnits() string {
	maxRows := m.height - chromeHeight
	if maxRows < minUnitRows {
		maxRows = minUnitRows
	}

	units, hidden := fitUnits(m.snap.PerUnit, maxRows)
	if len(units) == 0 {
		return mutedStyle.Render("  no units")
	}

	rows := make([]string, 0, len(units)+1)
	for _, u := range units {
		rows = append(rows, renderUnitRow(u))
	}
	if hidden > 0 {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  ... %d more", hidden)))
	}
	return strings.Join(rows, "\n")
}

// renderUnitRow renders a single unit line: glyph, id, category, detail.
func renderUnitRow(u progress.UnitProgress) string {
	line := fmt.Sprintf(" %s %-*s %-12s %s",
		statusGlyph(u.Status),
		unitIDWidth, truncate(u.ID, unitIDWidth),
		truncate(u.Category, 12),
		unitDetail(u),
	)
	return statusStyle(u.Status).Render(strings.TrimRight(line, " "))
}

// unitDetail renders the per-status trailing column.
func unitDetail(u progress.UnitProgress) string {
	switch u.Status {
	case workunit.StatusRunning:
		d := fmtDuration(u.Elapsed())
		if u.Attempt > 1 {
			return fmt.Sprintf("%s  attempt %d", d, u.Attempt)
		}
		return d
	case workunit.StatusRetrying:
		return fmt.Sprintf("retry %d: %s", u.Attempt, u.LastError)
	case workunit.StatusSucceeded:
		return fmtDuration(u.Elapsed())
	case workunit.StatusFailed:
		return u.LastError
	default:
		return ""
	}
}

// renderPausePrompt renders the circuit breaker decision banner.
func (m Model) renderPausePrompt() string {
	banner := pauseBannerStyle.Render(
		fmt.Sprintf("Run paused after %d consecutive failures", m.pause.failures))
	keys := helpStyle.Render("[c] continue   [a] abort")
	return banner + "\n" + keys
}

// renderHelp renders the footer key hints.
func (m Model) renderHelp() string {
	return helpStyle.Render("q quit")
}

// statusGlyph maps a unit status to its row marker.
func statusGlyph(s workunit.Status) string {
	switch s {
	case workunit.StatusRunning:
		return "▶"
	case workunit.StatusRetrying:
		return "↻"
	case workunit.StatusSucceeded:
		return "✓"
	case workunit.StatusFailed:
		return "✗"
	case workunit.StatusCancelled:
		return "⊘"
	default:
		return "○"
	}
}

// fitUnits trims rows to maxRows, dropping finished and queued rows before
// active or failed ones so live work stays visible. Kept rows preserve
// registration order. Returns the rows to draw and how many were hidden.
func fitUnits(units []progress.UnitProgress, maxRows int) ([]progress.UnitProgress, int) {
	if maxRows <= 0 || len(units) <= maxRows {
		return units, 0
	}

	prioritized := func(u progress.UnitProgress) bool {
		switch u.Status {
		case workunit.StatusRunning, workunit.StatusRetrying, workunit.StatusFailed:
			return true
		default:
			return false
		}
	}

	idx := make([]int, 0, maxRows)
	for i, u := range units {
		if len(idx) == maxRows {
			break
		}
		if prioritized(u) {
			idx = append(idx, i)
		}
	}
	for i, u := range units {
		if len(idx) == maxRows {
			break
		}
		if !prioritized(u) {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)

	keep := make([]progress.UnitProgress, 0, len(idx))
	for _, i := range idx {
		keep = append(keep, units[i])
	}
	return keep, len(units) - len(keep)
}

// fmtDuration renders short durations with sub-second detail and longer
// ones rounded to whole seconds.
func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// truncate shortens s to n runes, ending in ellipsis when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
