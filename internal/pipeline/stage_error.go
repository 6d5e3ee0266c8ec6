package pipeline

import (
	"fmt"

	"zepdf/internal/formats"
	"zepdf/internal/services"
)

// StageError is the structured failure produced when an engine invocation
// times out or exits non-zero. It names the failing stage so callers can
// distinguish hangs from crashes and report which engine misbehaved.
type StageError struct {
	Stage      int
	Engine     formats.Engine
	ExitCode   int
	TimedOut   bool
	Diagnostic string
}

func (e *StageError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("engine timeout: stage %d (%s) exceeded its timeout and was terminated", e.Stage, e.Engine)
	}
	return fmt.Sprintf("engine failure: stage %d (%s) exited with code %d", e.Stage, e.Engine, e.ExitCode)
}

func (e *StageError) Unwrap() error {
	if e.TimedOut {
		return services.ErrEngineTimeout
	}
	return services.ErrEngineFailure
}
