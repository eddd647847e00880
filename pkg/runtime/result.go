package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// Result is the outcome of one Execute call.
type Result struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// OK reports whether the runtime finished with exit code 0.
func (r *Result) OK() bool {
	return r != nil && r.ExitCode == 0
}

// ExitError is returned when the runtime finished with a non-zero status.
type ExitError struct {
	Op     op.ID
	Result *Result
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Op, e.Result.ExitCode)
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Op, e.Result.ExitCode, msg)
}

// ExitCode returns the runtime's exit status.
func (e *ExitError) ExitCode() int {
	return e.Result.ExitCode
}
