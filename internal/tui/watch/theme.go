// Package watch implements the ipfsbridge system watch TUI: a live view of
// dispatches streamed from a running API server.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusError   lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	teal := lipgloss.Color("#469EA2")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00D084")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD33D")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56")),
		StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56")).Bold(true),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6ACAD1")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00D084")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// statusStyle picks the style for a dispatch status or event type suffix.
func (t Theme) statusStyle(status string) lipgloss.Style {
	switch status {
	case "succeeded", "completed":
		return t.StatusOK
	case "failed":
		return t.StatusFailed
	case "error":
		return t.StatusError
	case "running", "started":
		return t.StatusRunning
	default:
		return t.Dim
	}
}
