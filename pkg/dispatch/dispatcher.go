// Package dispatch hands encoded commands to a runtime, one blocking call
// per command.
//
// A Dispatcher crosses the runtime boundary exactly once per Dispatch: no
// retry, no queue. Calls are serialized unless the runtime declares itself
// reentrant, and an optional lock file extends that serialization to other
// processes sharing the same repository. History, events and metrics are
// side channels that never change the outcome of a call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mattjoyce/ipfsbridge/internal/events"
	"github.com/mattjoyce/ipfsbridge/internal/lock"
	"github.com/mattjoyce/ipfsbridge/internal/log"
	"github.com/mattjoyce/ipfsbridge/pkg/command"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
	"github.com/mattjoyce/ipfsbridge/pkg/runtime"
)

// recordTimeout bounds how long a side-channel write may delay the caller.
const recordTimeout = 5 * time.Second

// Config tunes a Dispatcher.
type Config struct {
	// Timeouts overrides DefaultTimeout per operation. Zero disables the
	// deadline for that operation.
	Timeouts       map[op.ID]time.Duration
	DefaultTimeout time.Duration
	// LockFile, when set, is flocked around every call.
	LockFile string
}

// Recorder persists dispatch records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Publisher broadcasts dispatch events.
type Publisher interface {
	Publish(eventType string, data any)
}

// Dispatcher is the single crossing point into a Runtime.
type Dispatcher struct {
	rt  runtime.Runtime
	cfg Config
	// turn admits one call at a time; nil when the runtime is reentrant.
	turn     *semaphore.Weighted
	inFlight atomic.Int64

	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger
}

// New creates a Dispatcher for rt.
func New(rt runtime.Runtime, cfg Config) *Dispatcher {
	d := &Dispatcher{
		rt:     rt,
		cfg:    cfg,
		logger: log.WithComponent("dispatch"),
	}
	if !runtime.IsReentrant(rt) {
		d.turn = semaphore.NewWeighted(1)
	}
	return d
}

// WithRecorder attaches a history store.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// WithPublisher attaches an event sink.
func (d *Dispatcher) WithPublisher(p Publisher) *Dispatcher {
	d.publisher = p
	return d
}

// Runtime returns the runtime calls are handed to.
func (d *Dispatcher) Runtime() runtime.Runtime { return d.rt }

// Serialized reports whether calls are serialized in this process.
func (d *Dispatcher) Serialized() bool { return d.turn != nil }

// InFlight returns the number of calls currently inside the runtime.
func (d *Dispatcher) InFlight() int { return int(d.inFlight.Load()) }

// Timeout returns the deadline applied to id.
func (d *Dispatcher) Timeout(id op.ID) time.Duration {
	if t, ok := d.cfg.Timeouts[id]; ok {
		return t
	}
	return d.cfg.DefaultTimeout
}

// Dispatch hands c to the runtime exactly once and blocks until it returns.
// A non-zero exit status is reported as *runtime.ExitError together with the
// result; transport failures are returned wrapped and the result may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, c command.Command) (*runtime.Result, error) {
	if len(c.Argv()) == 0 {
		return nil, fmt.Errorf("dispatch: %w: empty command", command.ErrMissingArgument)
	}

	p := runtime.NewPayload(c)
	rec := Record{
		ID:          uuid.NewString(),
		Op:          c.Op,
		Runtime:     d.rt.Name(),
		Line:        p.Line,
		Argv:        p.Argv,
		Len:         p.Len,
		Fingerprint: c.Fingerprint(),
	}
	logger := d.logger.With("dispatch_id", rec.ID, "op", string(c.Op), "fingerprint", rec.Fingerprint[:16])

	if t := d.Timeout(c.Op); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	// Waiting for a turn honours ctx; a caller that gives up never reaches
	// the runtime.
	if d.turn != nil {
		if err := d.turn.Acquire(ctx, 1); err != nil {
			return nil, d.abandon(ctx, rec, logger, fmt.Errorf("waiting for runtime: %w", err))
		}
		defer d.turn.Release(1)
	}
	if d.cfg.LockFile != "" {
		l, err := lock.Acquire(ctx, d.cfg.LockFile)
		if err != nil {
			return nil, d.abandon(ctx, rec, logger, err)
		}
		defer func() {
			if err := l.Release(); err != nil {
				logger.Warn("failed to release lock file", "error", err)
			}
		}()
	}

	rec.StartedAt = time.Now().UTC()
	d.publish(events.DispatchStarted, newEvent(rec))
	logger.Debug("dispatching", "len", p.Len)

	d.inFlight.Add(1)
	inFlightAll.Add(1)
	res, err := d.rt.Execute(ctx, p)
	inFlightAll.Add(-1)
	d.inFlight.Add(-1)

	rec.CompletedAt = time.Now().UTC()
	rec.Duration = rec.CompletedAt.Sub(rec.StartedAt)

	if err == nil && res == nil {
		err = errors.New("runtime returned no result")
	}
	if res != nil {
		rec.ExitCode = res.ExitCode
		rec.Stdout = res.Stdout
		rec.Stderr = res.Stderr
		rec.Truncated = res.Truncated
	}

	switch {
	case err != nil:
		rec.Status = StatusError
		rec.Error = err.Error()
		err = fmt.Errorf("dispatch %s: %w", c.Op, err)
		logger.Error("runtime call failed", "error", rec.Error, "duration", rec.Duration)
	case res.ExitCode != 0:
		rec.Status = StatusFailed
		err = &runtime.ExitError{Op: c.Op, Result: res}
		rec.Error = err.Error()
		logger.Warn("runtime reported failure", "exit_code", res.ExitCode, "duration", rec.Duration)
	default:
		rec.Status = StatusSucceeded
		logger.Info("dispatch completed", "duration", rec.Duration, "stdout_bytes", len(res.Stdout))
	}

	observe(c.Op, rec.Status, rec.Duration)
	d.record(ctx, rec, logger)
	if rec.Status == StatusSucceeded {
		d.publish(events.DispatchCompleted, newEvent(rec))
	} else {
		d.publish(events.DispatchFailed, newEvent(rec))
	}

	return res, err
}

// abandon records a call that ended before reaching the runtime.
func (d *Dispatcher) abandon(ctx context.Context, rec Record, logger *slog.Logger, err error) error {
	rec.StartedAt = time.Now().UTC()
	rec.CompletedAt = rec.StartedAt
	rec.Status = StatusError
	rec.Error = err.Error()
	logger.Warn("dispatch abandoned before reaching runtime", "error", rec.Error)

	observe(rec.Op, rec.Status, 0)
	d.record(ctx, rec, logger)
	d.publish(events.DispatchFailed, newEvent(rec))
	return fmt.Errorf("dispatch %s: %w", rec.Op, err)
}

func (d *Dispatcher) record(ctx context.Context, rec Record, logger *slog.Logger) {
	if d.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.recorder.Record(rctx, rec); err != nil {
		logger.Error("failed to record dispatch", "error", err)
	}
}

func (d *Dispatcher) publish(eventType string, data any) {
	if d.publisher != nil {
		d.publisher.Publish(eventType, data)
	}
}
