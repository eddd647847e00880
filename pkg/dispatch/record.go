package dispatch

import (
	"time"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// Status is the outcome of one dispatch.
type Status string

const (
	// StatusSucceeded means the runtime finished with exit code 0.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the runtime finished with a non-zero exit code.
	StatusFailed Status = "failed"
	// StatusError means the call never completed inside the runtime
	// (transport failure, timeout, unsupported operation).
	StatusError Status = "error"
)

// Record describes one completed dispatch.
type Record struct {
	ID          string        `json:"id"`
	Op          op.ID         `json:"op"`
	Runtime     string        `json:"runtime"`
	Line        string        `json:"line"`
	Argv        []string      `json:"argv"`
	Len         int           `json:"len"`
	Fingerprint string        `json:"fingerprint"`
	Status      Status        `json:"status"`
	ExitCode    int           `json:"exit_code"`
	Stdout      string        `json:"stdout,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
	Truncated   bool          `json:"truncated,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// Event is the payload published for dispatch events. Output is left out.
type Event struct {
	ID          string `json:"id"`
	Op          op.ID  `json:"op"`
	Line        string `json:"line"`
	Fingerprint string `json:"fingerprint"`
	Status      Status `json:"status,omitempty"`
	ExitCode    int    `json:"exit_code"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

func newEvent(rec Record) Event {
	return Event{
		ID:          rec.ID,
		Op:          rec.Op,
		Line:        rec.Line,
		Fingerprint: rec.Fingerprint,
		Status:      rec.Status,
		ExitCode:    rec.ExitCode,
		DurationMS:  rec.Duration.Milliseconds(),
		Error:       rec.Error,
	}
}
