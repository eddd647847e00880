package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/mattjoyce/ipfsbridge/internal/log"
)

const (
	// DefaultBinary is the runtime executable looked up on PATH.
	DefaultBinary = "ipfs"

	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 5 * time.Second
)

// ExecConfig configures the subprocess runtime.
type ExecConfig struct {
	Binary      string
	Repo        string // exported as IPFS_PATH when set
	Env         map[string]string
	Dir         string
	GracePeriod time.Duration
	MaxOutput   int
	Reentrant   bool
}

// Exec runs each payload as one invocation of the runtime binary. The argv is
// passed as discrete arguments; no shell is involved.
type Exec struct {
	cfg    ExecConfig
	logger *slog.Logger
}

// NewExec creates a subprocess runtime.
func NewExec(cfg ExecConfig) *Exec {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &Exec{cfg: cfg, logger: log.WithComponent("runtime.exec")}
}

func (e *Exec) Name() string { return "exec" }

func (e *Exec) Reentrant() bool { return e.cfg.Reentrant }

// Available resolves the configured binary.
func (e *Exec) Available() (string, error) {
	return exec.LookPath(e.cfg.Binary)
}

func (e *Exec) environ() []string {
	env := os.Environ()
	if e.cfg.Repo != "" {
		env = append(env, "IPFS_PATH="+e.cfg.Repo)
	}
	for k, v := range e.cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Execute spawns the binary and waits for it. When ctx ends first the process
// gets SIGTERM, then SIGKILL after the grace period, and ctx.Err() is
// returned along with whatever output was captured.
func (e *Exec) Execute(ctx context.Context, p Payload) (*Result, error) {
	if len(p.Argv) == 0 {
		return nil, fmt.Errorf("exec runtime: empty argv")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Not CommandContext: termination is managed here. The child leads its
	// own process group so helpers it forks are signalled with it.
	cmd := exec.Command(e.cfg.Binary, p.Argv...)
	cmd.Env = e.environ()
	cmd.Dir = e.cfg.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// A grandchild holding stdout/stderr open must not keep Wait blocked.
	cmd.WaitDelay = e.cfg.GracePeriod

	stdout := newCapture(e.cfg.MaxOutput)
	stderr := newCapture(e.cfg.MaxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger := e.logger.With("op", string(p.Op))
	logger.Debug("spawning runtime", "binary", e.cfg.Binary, "argc", len(p.Argv))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.cfg.Binary, err)
	}
	pgid := cmd.Process.Pid

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		logger.Warn("runtime call cancelled, sending SIGTERM", "reason", ctx.Err())
		signalGroup(logger, pgid, syscall.SIGTERM)

		grace := time.NewTimer(e.cfg.GracePeriod)
		defer grace.Stop()

		select {
		case <-waitErr:
			logger.Info("runtime exited after SIGTERM")
		case <-grace.C:
			logger.Warn("runtime did not exit after SIGTERM, sending SIGKILL")
			signalGroup(logger, pgid, syscall.SIGKILL)
			<-waitErr
		}

		res := &Result{ExitCode: -1, Duration: time.Since(start)}
		collect(res, stdout, stderr)
		return res, ctx.Err()

	case err := <-waitErr:
		res := &Result{Duration: time.Since(start)}
		collect(res, stdout, stderr)
		if errors.Is(err, exec.ErrWaitDelay) {
			logger.Warn("runtime exited but left its output open; stopping the rest of its process group")
			signalGroup(logger, pgid, syscall.SIGKILL)
			res.ExitCode = cmd.ProcessState.ExitCode()
			return res, nil
		}
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return res, fmt.Errorf("wait for %s: %w", e.cfg.Binary, err)
			}
			res.ExitCode = exitErr.ExitCode()
			logger.Debug("runtime exited with non-zero status", "exit_code", res.ExitCode)
		}
		return res, nil
	}
}

// signalGroup signals every process in the group led by pgid. A group that
// is already gone is not an error.
func signalGroup(logger *slog.Logger, pgid int, sig syscall.Signal) {
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		logger.Error("failed to signal runtime", "signal", sig.String(), "error", err)
	}
}
