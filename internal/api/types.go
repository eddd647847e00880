package api

import (
	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// OpSummary is one entry of GET /ops.
type OpSummary struct {
	ID      op.ID    `json:"id"`
	Name    string   `json:"name"`
	Group   string   `json:"group"`
	Summary string   `json:"summary"`
	Aliases []string `json:"aliases"`
	Local   bool     `json:"local,omitempty"`
}

// OpDetail is returned by GET /ops/{name}.
type OpDetail struct {
	op.Descriptor
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// EncodeResponse is returned by POST /ops/{name}/encode.
type EncodeResponse struct {
	Op          op.ID    `json:"op"`
	Argv        []string `json:"argv"`
	Line        string   `json:"line"`
	Len         int      `json:"len"`
	Fingerprint string   `json:"fingerprint"`
}

// ExecRequest is the body of POST /exec. Argv wins over Line.
type ExecRequest struct {
	Line string   `json:"line,omitempty"`
	Argv []string `json:"argv,omitempty"`
}

// RunResponse is returned by POST /ops/{name} and POST /exec once the
// runtime has produced a result. A non-zero exit code is still a 200.
type RunResponse struct {
	Op         op.ID  `json:"op"`
	Line       string `json:"line"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Truncated  bool   `json:"truncated,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	APIVersion    string `json:"api_version"`
	Runtime       string `json:"runtime"`
	Serialized    bool   `json:"serialized"`
	InFlight      int    `json:"in_flight"`
	Subscribers   int    `json:"subscribers"`
	History       bool   `json:"history"`
}
