package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/fanout/internal/workunit"
)

var (
	// Colors meet WCAG AA contrast (4.5:1) on dark surfaces
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	greenColor   = lipgloss.Color("#10B981") // Green
	amberColor   = lipgloss.Color("#F59E0B") // Amber
	redColor     = lipgloss.Color("#F87171") // Red
	blueColor    = lipgloss.Color("#60A5FA") // Blue
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	textColor    = lipgloss.Color("#F9FAFB") // Light text

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().Foreground(greenColor)
	warnStyle    = lipgloss.NewStyle().Foreground(amberColor)
	errorStyle   = lipgloss.NewStyle().Foreground(redColor)
	runningStyle = lipgloss.NewStyle().Foreground(blueColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	spinnerStyle = lipgloss.NewStyle().Foreground(primaryColor)

	pauseBannerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#1F2937")).
				Background(amberColor).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// statusStyle returns the row style for a unit status.
func statusStyle(s workunit.Status) lipgloss.Style {
	switch s {
	case workunit.StatusRunning:
		return runningStyle
	case workunit.StatusRetrying:
		return warnStyle
	case workunit.StatusSucceeded:
		return successStyle
	case workunit.StatusFailed:
		return errorStyle
	default:
		return mutedStyle
	}
}
