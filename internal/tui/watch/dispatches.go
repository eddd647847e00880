package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ipfsbridge/internal/events"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
)

// ActiveDispatch is a dispatch that has started but not finished.
type ActiveDispatch struct {
	ID      string
	Op      string
	Line    string
	Started time.Time
}

// OpStats aggregates finished dispatches of one operation.
type OpStats struct {
	Op           string
	Succeeded    int
	Failed       int
	Errors       int
	LastStatus   string
	LastExitCode int
	LastDuration time.Duration
	LastRun      time.Time
}

func (s *OpStats) total() int { return s.Succeeded + s.Failed + s.Errors }

// applyDispatchEvent updates active and stats from one hub event. Unknown
// event types and undecodable payloads are ignored.
func applyDispatchEvent(active map[string]*ActiveDispatch, stats map[string]*OpStats, e events.Event) {
	var ev dispatch.Event
	if err := json.Unmarshal(e.Data, &ev); err != nil || ev.ID == "" {
		return
	}

	switch e.Type {
	case events.DispatchStarted:
		active[ev.ID] = &ActiveDispatch{ID: ev.ID, Op: string(ev.Op), Line: ev.Line, Started: e.At}
	case events.DispatchCompleted, events.DispatchFailed:
		delete(active, ev.ID)
		s, ok := stats[string(ev.Op)]
		if !ok {
			s = &OpStats{Op: string(ev.Op)}
			stats[string(ev.Op)] = s
		}
		switch ev.Status {
		case dispatch.StatusSucceeded:
			s.Succeeded++
		case dispatch.StatusFailed:
			s.Failed++
		default:
			s.Errors++
		}
		s.LastStatus = string(ev.Status)
		s.LastExitCode = ev.ExitCode
		s.LastDuration = time.Duration(ev.DurationMS) * time.Millisecond
		s.LastRun = e.At
	}
}

func renderActive(active map[string]*ActiveDispatch, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4
	title := theme.Title.Render(fmt.Sprintf("IN FLIGHT (%d)", len(active)))

	if len(active) == 0 {
		return theme.Border.Width(innerWidth).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, theme.Dim.Render("  idle")))
	}

	list := make([]*ActiveDispatch, 0, len(active))
	for _, a := range active {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Started.Before(list[j].Started) })

	lines := make([]string, 0, len(list))
	for _, a := range list {
		lines = append(lines, fmt.Sprintf(" %s %s %s %s",
			theme.StatusRunning.Render("▶"),
			theme.Dim.Render(shortID(a.ID)),
			truncate(a.Line, innerWidth-30),
			theme.Dim.Render(now.Sub(a.Started).Round(100*time.Millisecond).String()),
		))
	}
	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func renderOpStats(stats map[string]*OpStats, theme Theme, width int) string {
	innerWidth := width - 4
	title := theme.Title.Render("OPERATIONS")

	if len(stats) == 0 {
		return theme.Border.Width(innerWidth).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, theme.Dim.Render("  No dispatches yet")))
	}

	list := make([]*OpStats, 0, len(stats))
	for _, s := range stats {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].total() != list[j].total() {
			return list[i].total() > list[j].total()
		}
		return list[i].Op < list[j].Op
	})

	header := theme.Header.Render(fmt.Sprintf(" %-16s %6s %6s %6s  %-10s %8s", "OP", "OK", "FAIL", "ERR", "LAST", "TIME"))
	lines := []string{header}
	for _, s := range list {
		lines = append(lines, fmt.Sprintf(" %-16s %6d %6d %6d  %s %8s",
			s.Op, s.Succeeded, s.Failed, s.Errors,
			theme.statusStyle(s.LastStatus).Render(fmt.Sprintf("%-10s", s.LastStatus)),
			s.LastDuration.String(),
		))
	}
	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
