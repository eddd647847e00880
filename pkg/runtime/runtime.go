// Package runtime is the single boundary between the bridge and the embedded
// command-dispatch runtime.
//
// A Runtime receives one Payload per call and blocks until the runtime has
// finished with it. Implementations wrap an in-process entry function, the
// ipfs binary, or a Kubo-compatible RPC endpoint.
package runtime

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when an operation has no equivalent on a runtime
// (for example "daemon" over RPC).
var ErrUnsupported = errors.New("operation not supported by runtime")

//go:generate mockgen -destination=mocks/mock_runtime.go -package=mocks github.com/mattjoyce/ipfsbridge/pkg/runtime Runtime

// Runtime executes one payload and reports how the runtime finished.
// A non-nil error means the payload never reached the runtime or the
// transport failed; a runtime-side failure is a Result with a non-zero
// ExitCode.
type Runtime interface {
	Name() string
	Execute(ctx context.Context, p Payload) (*Result, error)
}

// Reentrant is implemented by runtimes that accept overlapping Execute calls.
type Reentrant interface {
	Reentrant() bool
}

// IsReentrant reports whether rt declares itself safe for concurrent use.
func IsReentrant(rt Runtime) bool {
	r, ok := rt.(Reentrant)
	return ok && r.Reentrant()
}
