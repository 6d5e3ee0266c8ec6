package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"zepdf/internal/artifacts"
	"zepdf/internal/config"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/runner"
	"zepdf/internal/services"
)

// Options carries the caller's per-stage knobs.
type Options struct {
	// ImageDPI overrides the configured default for PDF rasterization.
	ImageDPI int
}

// Result is the successful outcome of a plan execution: one terminal
// artifact plus structural metadata about it.
type Result struct {
	Artifact *artifacts.Artifact
	// Pages is the page count of a PDF terminal artifact, 0 otherwise.
	Pages int
	// PageFiles counts the entries of a zipped image set.
	PageFiles int
	// Zipped reports that the terminal artifact is a zip of per-page images.
	Zipped   bool
	Stages   int
	Duration time.Duration
}

// Pipeline executes conversion plans stage by stage through an external
// process runner.
type Pipeline struct {
	cfg        *config.Config
	run        runner.Runner
	logger     *slog.Logger
	profileDir string
	profile    *profileLock
}

// New builds a pipeline bound to the configured engines and work directory.
func New(cfg *config.Config, run runner.Runner, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	lock, err := newProfileLock(cfg.Paths.ProfileDir)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:        cfg,
		run:        run,
		logger:     logger,
		profileDir: cfg.Paths.ProfileDir,
		profile:    lock,
	}, nil
}

// Execute runs the plan against input and promotes the terminal artifact
// into dest so it outlives the pipeline's own scope. All intermediates are
// deleted before return on success, failure, and cancellation alike.
func (p *Pipeline) Execute(ctx context.Context, plan formats.Plan, input *artifacts.Artifact, opts Options, dest *artifacts.Scope) (*Result, error) {
	start := time.Now()

	if input == nil || input.Size == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, "", "validate", "input artifact is empty", nil)
	}
	if err := plan.Validate(); err != nil {
		return nil, services.Wrap(services.ErrResource, "", "validate", "malformed plan", err)
	}

	if plan.Direct() {
		return p.executeDirect(plan, input, dest, start)
	}

	scope, err := artifacts.NewScope(p.cfg.Paths.WorkDir)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	var (
		cur       = input
		zipped    bool
		pageFiles int
	)

	for i, stage := range plan.Stages {
		stageCtx := logging.WithStage(ctx, stage.Name())
		stageLogger := logging.WithContext(stageCtx, p.logger).With(
			logging.String(logging.FieldEngine, string(stage.Engine)),
			logging.Int("stage_index", i),
		)

		work, err := scope.WorkDir(fmt.Sprintf("stage-%d", i))
		if err != nil {
			return nil, err
		}
		// A reserved input name keeps client-supplied filenames out of the
		// engine output contracts: the output globs can never match the
		// input, and glob metacharacters in upload names cannot break them.
		inPath, err := scope.Materialize(cur, work, "input."+stage.Input.Ext())
		if err != nil {
			return nil, err
		}

		spec, err := p.buildCommand(stage, inPath, work, opts)
		if err != nil {
			return nil, err
		}

		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("input_format", string(stage.Input)),
			logging.String("output_format", string(stage.Output)),
		)

		outcome, err := p.runStage(stageCtx, stage, spec)
		if err != nil {
			return nil, err
		}

		if outcome.TimedOut || outcome.ExitCode != 0 {
			stageErr := &StageError{
				Stage:      i,
				Engine:     stage.Engine,
				ExitCode:   outcome.ExitCode,
				TimedOut:   outcome.TimedOut,
				Diagnostic: p.diagnostic(outcome.Stdout, outcome.Stderr, []string{scope.Dir(), p.cfg.Paths.WorkDir, p.profileDir}),
			}
			stageLogger.Error("stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.Bool("timed_out", outcome.TimedOut),
				logging.Int("exit_code", outcome.ExitCode),
				logging.Duration("elapsed", outcome.Duration),
			)
			return nil, stageErr
		}

		outputs, err := collectOutputs(spec)
		if err != nil {
			return nil, err
		}
		if len(outputs) == 0 {
			// The suite exits zero on some unreadable inputs and simply
			// writes nothing; treat that as an engine failure.
			return nil, &StageError{
				Stage:      i,
				Engine:     stage.Engine,
				ExitCode:   outcome.ExitCode,
				Diagnostic: p.diagnostic("engine produced no output file", outcome.Stderr, []string{scope.Dir(), p.cfg.Paths.WorkDir}),
			}
		}

		// The previous intermediate has been consumed; drop it now so at
		// most two stage artifacts exist at a time.
		if i > 0 {
			_ = scope.Discard(cur)
		}
		_ = os.Remove(inPath)

		if len(outputs) == 1 {
			cur, err = scope.Adopt(outputs[0], "converted."+stage.Output.Ext(), stage.Output)
			if err != nil {
				return nil, err
			}
		} else {
			if i != len(plan.Stages)-1 {
				return nil, services.Wrap(services.ErrResource, stage.Name(), "collect outputs",
					"multi-file output from a non-terminal stage", nil)
			}
			zipPath, n, err := packagePages(outputs, work)
			if err != nil {
				return nil, err
			}
			cur, err = scope.Adopt(zipPath, "pages.zip", stage.Output)
			if err != nil {
				return nil, err
			}
			zipped = true
			pageFiles = n
		}

		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("elapsed", outcome.Duration),
			logging.Int64("output_bytes", cur.Size),
		)
	}

	terminal, err := scope.Promote(cur, dest)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Artifact:  terminal,
		Stages:    len(plan.Stages),
		Zipped:    zipped,
		PageFiles: pageFiles,
		Duration:  time.Since(start),
	}
	if plan.Output == formats.PDF && !zipped {
		if pages, err := pdfPages(terminal.Path()); err == nil {
			result.Pages = pages
		}
	}
	return result, nil
}

// executeDirect handles the empty plan: input format equals output format,
// so the artifact is copied through without any engine invocation.
func (p *Pipeline) executeDirect(plan formats.Plan, input *artifacts.Artifact, dest *artifacts.Scope, start time.Time) (*Result, error) {
	reader, err := input.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	terminal, err := dest.Put(reader, "converted."+plan.Output.Ext(), plan.Output)
	if err != nil {
		return nil, err
	}
	result := &Result{Artifact: terminal, Duration: time.Since(start)}
	if plan.Output == formats.PDF {
		if pages, err := pdfPages(terminal.Path()); err == nil {
			result.Pages = pages
		}
	}
	return result, nil
}

// runStage invokes the engine, holding the office profile lock for suite
// engines so concurrent requests never share a profile.
func (p *Pipeline) runStage(ctx context.Context, stage formats.Stage, spec stageCommand) (runner.Outcome, error) {
	if stage.Engine.OfficeEngine() {
		if err := p.profile.acquire(ctx); err != nil {
			return runner.Outcome{}, err
		}
		defer p.profile.release()
	}
	return p.run.Run(ctx, spec.cmd)
}
