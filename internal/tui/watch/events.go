package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ipfsbridge/internal/events"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
)

const visibleEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= visibleEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme, innerWidth))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme, width int) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))
	suffix := e.Type[strings.LastIndex(e.Type, ".")+1:]
	typeName := theme.statusStyle(suffix).Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, truncate(describeEvent(e), width-32))
}

// describeEvent renders "[id] line (exit N)" for dispatch events and the raw
// payload otherwise.
func describeEvent(e events.Event) string {
	var ev dispatch.Event
	if err := json.Unmarshal(e.Data, &ev); err != nil || ev.ID == "" {
		return string(e.Data)
	}

	parts := []string{fmt.Sprintf("[%s]", shortID(ev.ID)), ev.Line}
	if e.Type != events.DispatchStarted {
		parts = append(parts, fmt.Sprintf("(exit %d, %dms)", ev.ExitCode, ev.DurationMS))
	}
	if ev.Error != "" && ev.Status == dispatch.StatusError {
		parts = append(parts, ev.Error)
	}
	return strings.Join(parts, " ")
}
