package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"zepdf/internal/logging"
	"zepdf/internal/services"
)

// Command describes one external engine invocation.
type Command struct {
	Binary string
	Args   []string
	// Dir is the scoped working directory; concurrent requests never share one.
	Dir string
	// Env entries are appended to the inherited environment.
	Env     []string
	Timeout time.Duration
}

// Outcome reports the terminal state of a finished invocation. A non-zero
// exit code is data, not an error; only resource-acquisition failures are
// returned as errors.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Runner executes external commands. The pipeline depends on this interface
// so tests can substitute a stub executor.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Outcome, error)
}

// ExecRunner runs commands as child processes in their own process group and
// reaps them on every path. Captured output is capped to the configured byte
// budget, keeping the tail.
type ExecRunner struct {
	maxCaptureBytes int
	logger          *slog.Logger
}

// NewExecRunner constructs a runner capping each captured stream at
// maxCaptureBytes (0 means unlimited).
func NewExecRunner(maxCaptureBytes int, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ExecRunner{maxCaptureBytes: maxCaptureBytes, logger: logger}
}

// Run starts the command rooted at cmd.Dir and waits for it to finish,
// enforcing the wall-clock timeout. On expiry the whole process group is
// killed and the outcome reports TimedOut instead of blocking indefinitely.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Outcome, error) {
	if cmd.Binary == "" {
		return Outcome{}, services.Wrap(services.ErrResource, "", "run", "no binary configured", nil)
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...) //nolint:gosec
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}

	stdout := newTailBuffer(r.maxCaptureBytes)
	stderr := newTailBuffer(r.maxCaptureBytes)
	proc.Stdout = stdout
	proc.Stderr = stderr

	// A dedicated process group lets cancellation take down helper
	// processes the engine forks (soffice wraps oosplash, unoconv wraps
	// soffice).
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		if proc.Process == nil {
			return nil
		}
		return unix.Kill(-proc.Process.Pid, unix.SIGKILL)
	}
	proc.WaitDelay = 5 * time.Second

	start := time.Now()
	if err := proc.Start(); err != nil {
		return Outcome{}, services.Wrap(services.ErrResource, "", "spawn", cmd.Binary, err)
	}

	waitErr := proc.Wait()
	outcome := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		// Caller cancellation (client disconnect, shutdown). The group is
		// already dead via Cancel; propagate the cause.
		return outcome, ctx.Err()
	}

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome.TimedOut = true
		outcome.ExitCode = -1
		r.logger.Warn("command timed out",
			logging.String("binary", cmd.Binary),
			logging.Duration("timeout", cmd.Timeout),
		)
		return outcome, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		return outcome, services.Wrap(services.ErrResource, "", "wait", cmd.Binary, waitErr)
	}

	return outcome, nil
}
