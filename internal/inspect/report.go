// Package inspect renders a recorded dispatch together with every other
// recorded call of the identical command line.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/ipfsbridge/internal/history"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
)

// maxRepeats bounds how many earlier calls a report lists.
const maxRepeats = 20

// Source reads recorded dispatches.
type Source interface {
	Get(ctx context.Context, id string) (*dispatch.Record, error)
	List(ctx context.Context, f history.Filter) ([]dispatch.Record, error)
}

// Report is the structured JSON representation of a dispatch report.
type Report struct {
	Dispatch dispatch.Record `json:"dispatch"`
	Repeats  []Step          `json:"repeats"`
	Summary  Summary         `json:"summary"`
}

// Step is one other call with the same fingerprint.
type Step struct {
	ID         string          `json:"id"`
	Status     dispatch.Status `json:"status"`
	ExitCode   int             `json:"exit_code"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
}

// Summary aggregates the dispatch and its repeats.
type Summary struct {
	Calls     int `json:"calls"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// BuildReport renders a terminal-friendly report for one dispatch.
func BuildReport(ctx context.Context, src Source, id string) (string, error) {
	report, err := gatherReportData(ctx, src, id)
	if err != nil {
		return "", err
	}

	rec := report.Dispatch
	var out strings.Builder
	fmt.Fprintf(&out, "Dispatch Report\n")
	fmt.Fprintf(&out, "ID          : %s\n", rec.ID)
	fmt.Fprintf(&out, "Op          : %s\n", rec.Op)
	fmt.Fprintf(&out, "Runtime     : %s\n", rec.Runtime)
	fmt.Fprintf(&out, "Line        : %s\n", rec.Line)
	fmt.Fprintf(&out, "Fingerprint : %s\n", rec.Fingerprint)
	fmt.Fprintf(&out, "Status      : %s (exit %d)\n", rec.Status, rec.ExitCode)
	fmt.Fprintf(&out, "Started     : %s\n", rec.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(&out, "Duration    : %s\n", rec.Duration.Round(time.Millisecond))
	if rec.Error != "" {
		fmt.Fprintf(&out, "Error       : %s\n", rec.Error)
	}
	if rec.Stderr != "" {
		fmt.Fprintf(&out, "Stderr      :\n")
		for _, line := range strings.Split(strings.TrimRight(rec.Stderr, "\n"), "\n") {
			fmt.Fprintf(&out, "  %s\n", line)
		}
	}
	if rec.Truncated {
		fmt.Fprintf(&out, "Output      : truncated\n")
	}

	s := report.Summary
	fmt.Fprintf(&out, "\nSame command: %d call(s), %d succeeded, %d failed, %d error(s)\n",
		s.Calls, s.Succeeded, s.Failed, s.Errors)
	if len(report.Repeats) == 0 {
		fmt.Fprintf(&out, "  <no other calls>\n")
	}
	for _, step := range report.Repeats {
		fmt.Fprintf(&out, "  %s  %s  %-9s exit %-3d %dms\n",
			step.StartedAt.Local().Format("2006-01-02 15:04:05"),
			step.ID, step.Status, step.ExitCode, step.DurationMS)
	}

	return out.String(), nil
}

// BuildJSONReport returns the machine-readable report.
func BuildJSONReport(ctx context.Context, src Source, id string) (string, error) {
	report, err := gatherReportData(ctx, src, id)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, src Source, id string) (*Report, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("dispatch id is required")
	}

	rec, err := src.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &Report{Dispatch: *rec, Repeats: make([]Step, 0)}
	count(&report.Summary, rec.Status)

	if rec.Fingerprint == "" {
		return report, nil
	}
	same, err := src.List(ctx, history.Filter{Fingerprint: rec.Fingerprint, Limit: maxRepeats + 1})
	if err != nil {
		return nil, fmt.Errorf("list repeats: %w", err)
	}
	for _, r := range same {
		if r.ID == rec.ID || len(report.Repeats) == maxRepeats {
			continue
		}
		report.Repeats = append(report.Repeats, Step{
			ID:         r.ID,
			Status:     r.Status,
			ExitCode:   r.ExitCode,
			StartedAt:  r.StartedAt,
			DurationMS: r.Duration.Milliseconds(),
		})
		count(&report.Summary, r.Status)
	}
	return report, nil
}

func count(s *Summary, status dispatch.Status) {
	s.Calls++
	switch status {
	case dispatch.StatusSucceeded:
		s.Succeeded++
	case dispatch.StatusFailed:
		s.Failed++
	default:
		s.Errors++
	}
}
