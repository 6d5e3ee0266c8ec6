package pipeline_test

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zepdf/internal/artifacts"
	"zepdf/internal/formats"
	"zepdf/internal/pipeline"
	"zepdf/internal/runner"
	"zepdf/internal/services"
	"zepdf/internal/testsupport"
)

// stubRunner simulates engine behavior without spawning processes: it writes
// the files a real engine would leave in the stage working directory.
type stubRunner struct {
	calls   []runner.Command
	handler func(cmd runner.Command) (runner.Outcome, error)
}

func (s *stubRunner) Run(_ context.Context, cmd runner.Command) (runner.Outcome, error) {
	s.calls = append(s.calls, cmd)
	return s.handler(cmd)
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// happyEngines mimics soffice and pdftoppm success paths, writing pageCount
// pages for rasterization.
func happyEngines(t *testing.T, pageCount int) func(runner.Command) (runner.Outcome, error) {
	t.Helper()
	return func(cmd runner.Command) (runner.Outcome, error) {
		switch cmd.Binary {
		case "soffice":
			in := cmd.Args[len(cmd.Args)-1]
			stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
			ext := argAfter(cmd.Args, "--convert-to")
			out := filepath.Join(argAfter(cmd.Args, "--outdir"), stem+"."+ext)
			if err := os.WriteFile(out, []byte("%PDF-stub "+ext), 0o644); err != nil {
				t.Fatalf("stub soffice write: %v", err)
			}
			return runner.Outcome{ExitCode: 0}, nil
		case "pdftoppm":
			prefix := cmd.Args[len(cmd.Args)-1]
			ext := "png"
			if cmd.Args[0] == "-jpeg" {
				ext = "jpg"
			}
			for i := 1; i <= pageCount; i++ {
				path := prefix + "-" + string(rune('0'+i)) + "." + ext
				if err := os.WriteFile(path, []byte("image-page"), 0o644); err != nil {
					t.Fatalf("stub pdftoppm write: %v", err)
				}
			}
			return runner.Outcome{ExitCode: 0}, nil
		default:
			t.Fatalf("unexpected binary %q", cmd.Binary)
			return runner.Outcome{}, nil
		}
	}
}

func putInput(t *testing.T, scope *artifacts.Scope, name string, format formats.Format, content string) *artifacts.Artifact {
	t.Helper()
	art, err := scope.Put(strings.NewReader(content), name, format)
	if err != nil {
		t.Fatalf("Put input: %v", err)
	}
	return art
}

func mustResolve(t *testing.T, in, out formats.Format) formats.Plan {
	t.Helper()
	plan, err := formats.NewResolver(formats.EngineSoffice).Resolve(in, out)
	if err != nil {
		t.Fatalf("Resolve(%s, %s): %v", in, out, err)
	}
	return plan
}

func assertWorkDirClean(t *testing.T, workDir string, allowed ...string) {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	keep := map[string]struct{}{}
	for _, name := range allowed {
		keep[name] = struct{}{}
	}
	for _, entry := range entries {
		if _, ok := keep[entry.Name()]; !ok {
			t.Errorf("leftover %s in work dir after execute", entry.Name())
		}
	}
}

func TestExecuteSingleStagePlan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	restore := pipeline.SetPageCountForTests(func(string) (int, error) { return 2, nil })
	defer restore()

	stub := &stubRunner{handler: happyEngines(t, 0)}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "report.docx", formats.DOCX, "word bytes")
	result, err := p.Execute(context.Background(), mustResolve(t, formats.DOCX, formats.PDF), input, pipeline.Options{}, dest)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Stages != 1 {
		t.Fatalf("stages = %d", result.Stages)
	}
	if result.Pages != 2 {
		t.Fatalf("pages = %d", result.Pages)
	}
	if result.Artifact.Format != formats.PDF {
		t.Fatalf("terminal format = %s", result.Artifact.Format)
	}
	if len(stub.calls) != 1 || stub.calls[0].Binary != "soffice" {
		t.Fatalf("unexpected engine calls: %+v", stub.calls)
	}
	assertWorkDirClean(t, cfg.Paths.WorkDir)
}

func TestExecuteChainedPlanZipsImageSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stub := &stubRunner{handler: happyEngines(t, 2)}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "report.docx", formats.DOCX, "word bytes")
	result, err := p.Execute(context.Background(), mustResolve(t, formats.DOCX, formats.PNG), input, pipeline.Options{ImageDPI: 300}, dest)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Stages != 2 {
		t.Fatalf("stages = %d", result.Stages)
	}
	if !result.Zipped || result.PageFiles != 2 {
		t.Fatalf("zipped=%v pageFiles=%d", result.Zipped, result.PageFiles)
	}
	if len(stub.calls) != 2 {
		t.Fatalf("expected 2 engine calls, got %d", len(stub.calls))
	}
	if dpi := argAfter(stub.calls[1].Args, "-r"); dpi != "300" {
		t.Fatalf("dpi flag = %q", dpi)
	}

	zr, err := zip.OpenReader(result.Artifact.Path())
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if len(names) != 2 || names[0] != "page_1.png" || names[1] != "page_2.png" {
		t.Fatalf("zip entries = %v", names)
	}
	assertWorkDirClean(t, cfg.Paths.WorkDir)
}

func TestExecuteZipsPagesInNumericOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stub := &stubRunner{handler: func(cmd runner.Command) (runner.Outcome, error) {
		if cmd.Binary != "pdftoppm" {
			t.Fatalf("unexpected binary %q", cmd.Binary)
		}
		prefix := cmd.Args[len(cmd.Args)-1]
		for i := 1; i <= 12; i++ {
			path := fmt.Sprintf("%s-%d.png", prefix, i)
			if err := os.WriteFile(path, []byte(fmt.Sprintf("img-%d", i)), 0o644); err != nil {
				t.Fatalf("stub pdftoppm write: %v", err)
			}
		}
		return runner.Outcome{ExitCode: 0}, nil
	}}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "book.pdf", formats.PDF, "%PDF twelve pages")
	result, err := p.Execute(context.Background(), mustResolve(t, formats.PDF, formats.PNG), input, pipeline.Options{}, dest)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.PageFiles != 12 {
		t.Fatalf("pageFiles = %d", result.PageFiles)
	}

	zr, err := zip.OpenReader(result.Artifact.Path())
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	// Entry page_N must hold engine page N; lexical ordering would place
	// page 10 where page 2 belongs.
	for _, f := range zr.File {
		var n int
		if _, err := fmt.Sscanf(f.Name, "page_%d.png", &n); err != nil {
			t.Fatalf("unexpected entry name %s", f.Name)
		}
		r, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(r)
		r.Close()
		if want := fmt.Sprintf("img-%d", n); string(data) != want {
			t.Fatalf("entry %s holds %q, want %q", f.Name, data, want)
		}
	}
}

func TestExecuteInputNamedLikePageOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stub := &stubRunner{handler: happyEngines(t, 2)}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	// The upload name mimics the rasterizer's own output pattern; it must
	// never be collected as a page.
	input := putInput(t, dest, "page-1.pdf", formats.PDF, "%PDF-1.4 upload bytes")
	result, err := p.Execute(context.Background(), mustResolve(t, formats.PDF, formats.PNG), input, pipeline.Options{}, dest)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.PageFiles != 2 {
		t.Fatalf("pageFiles = %d, want 2", result.PageFiles)
	}

	zr, err := zip.OpenReader(result.Artifact.Path())
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Fatalf("zip has %d entries, want 2", len(zr.File))
	}
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(r)
		r.Close()
		if string(data) != "image-page" {
			t.Fatalf("entry %s holds upload bytes, not engine output: %q", f.Name, data)
		}
	}
}

func TestExecuteFilenameWithGlobMetacharacters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	restore := pipeline.SetPageCountForTests(func(string) (int, error) { return 1, nil })
	defer restore()

	stub := &stubRunner{handler: happyEngines(t, 0)}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "report[1].docx", formats.DOCX, "word bytes")
	result, err := p.Execute(context.Background(), mustResolve(t, formats.DOCX, formats.PDF), input, pipeline.Options{}, dest)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Artifact.Format != formats.PDF {
		t.Fatalf("terminal format = %s", result.Artifact.Format)
	}
}

func TestExecuteStageFailureAbortsPlan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stub := &stubRunner{handler: func(cmd runner.Command) (runner.Outcome, error) {
		return runner.Outcome{ExitCode: 77, Stderr: "Fatal: source file could not be loaded from " + cmd.Dir}, nil
	}}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "corrupted.docx", formats.DOCX, "not really a docx")
	_, err = p.Execute(context.Background(), mustResolve(t, formats.DOCX, formats.PNG), input, pipeline.Options{}, dest)
	if err == nil {
		t.Fatal("expected failure")
	}
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != 0 || stageErr.ExitCode != 77 {
		t.Fatalf("stage=%d exit=%d", stageErr.Stage, stageErr.ExitCode)
	}
	if !errors.Is(err, services.ErrEngineFailure) {
		t.Fatalf("expected ErrEngineFailure, got %v", err)
	}
	// Plan aborted: the second stage never ran.
	if len(stub.calls) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(stub.calls))
	}
	// Diagnostics never leak host paths.
	if strings.Contains(stageErr.Diagnostic, cfg.Paths.WorkDir) {
		t.Fatalf("diagnostic leaks work dir: %q", stageErr.Diagnostic)
	}
	if !strings.Contains(stageErr.Diagnostic, "<workdir>") {
		t.Fatalf("diagnostic not scrubbed: %q", stageErr.Diagnostic)
	}
	assertWorkDirClean(t, cfg.Paths.WorkDir)
}

func TestExecuteTimeoutSurfacesEngineTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stub := &stubRunner{handler: func(runner.Command) (runner.Outcome, error) {
		return runner.Outcome{ExitCode: -1, TimedOut: true}, nil
	}}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "slow.docx", formats.DOCX, "word bytes")
	_, err = p.Execute(context.Background(), mustResolve(t, formats.DOCX, formats.PDF), input, pipeline.Options{}, dest)
	if !errors.Is(err, services.ErrEngineTimeout) {
		t.Fatalf("expected ErrEngineTimeout, got %v", err)
	}
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != 0 || !stageErr.TimedOut {
		t.Fatalf("unexpected stage error: %+v", stageErr)
	}
	assertWorkDirClean(t, cfg.Paths.WorkDir)
}

func TestExecuteEmptyPlanCopiesWithoutEngines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	restore := pipeline.SetPageCountForTests(func(string) (int, error) { return 1, nil })
	defer restore()

	stub := &stubRunner{handler: func(runner.Command) (runner.Outcome, error) {
		t.Fatal("engine invoked for identity plan")
		return runner.Outcome{}, nil
	}}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "already.pdf", formats.PDF, "%PDF-1.4 content")
	result, err := p.Execute(context.Background(), mustResolve(t, formats.PDF, formats.PDF), input, pipeline.Options{}, dest)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Stages != 0 {
		t.Fatalf("stages = %d", result.Stages)
	}
	r, err := result.Artifact.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "%PDF-1.4 content" {
		t.Fatalf("copied content = %q", data)
	}
}

func TestExecuteRejectsEmptyInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stub := &stubRunner{handler: func(runner.Command) (runner.Outcome, error) {
		t.Fatal("engine invoked for empty input")
		return runner.Outcome{}, nil
	}}
	p, err := pipeline.New(cfg, stub, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest, err := artifacts.NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer dest.Close()

	input := putInput(t, dest, "empty.docx", formats.DOCX, "")
	_, err = p.Execute(context.Background(), mustResolve(t, formats.DOCX, formats.PDF), input, pipeline.Options{}, dest)
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
