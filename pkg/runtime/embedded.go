package runtime

import (
	"context"
	"fmt"
	"io"
	"time"
)

// EntryFunc is the single entry point of an in-process runtime. It receives
// the payload, writes its output to stdout and stderr, and returns an exit
// status. It must honor ctx.
type EntryFunc func(ctx context.Context, p Payload, stdout, stderr io.Writer) int

// EmbeddedConfig tunes an Embedded runtime.
type EmbeddedConfig struct {
	Reentrant bool
	MaxOutput int
}

// Embedded runs payloads through an in-process entry function.
type Embedded struct {
	entry EntryFunc
	cfg   EmbeddedConfig
}

// NewEmbedded wraps entry as a Runtime.
func NewEmbedded(entry EntryFunc, cfg EmbeddedConfig) *Embedded {
	return &Embedded{entry: entry, cfg: cfg}
}

func (e *Embedded) Name() string { return "embedded" }

func (e *Embedded) Reentrant() bool { return e.cfg.Reentrant }

// Execute calls the entry function once. A panic inside the entry function is
// reported as an error, not propagated.
func (e *Embedded) Execute(ctx context.Context, p Payload) (res *Result, err error) {
	if e.entry == nil {
		return nil, fmt.Errorf("embedded runtime: no entry function")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdout := newCapture(e.cfg.MaxOutput)
	stderr := newCapture(e.cfg.MaxOutput)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("embedded runtime panicked on %q: %v", p.Op, r)
		}
	}()

	code := e.entry(ctx, p, stdout, stderr)
	res = &Result{ExitCode: code, Duration: time.Since(start)}
	collect(res, stdout, stderr)
	return res, nil
}
