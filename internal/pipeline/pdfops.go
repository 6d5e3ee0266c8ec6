package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"zepdf/internal/artifacts"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/runner"
	"zepdf/internal/services"
)

// SplitPDF extracts the pages selected by pageRange (e.g. "1-3,5") from a PDF
// into a single new PDF, in ascending page order. Out-of-range bounds are
// clamped to the document; a selection matching no page is rejected.
func (p *Pipeline) SplitPDF(ctx context.Context, input *artifacts.Artifact, pageRange string, dest *artifacts.Scope) (*Result, error) {
	start := time.Now()

	if input == nil || input.Size == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, "", "validate", "input artifact is empty", nil)
	}

	scope, err := artifacts.NewScope(p.cfg.Paths.WorkDir)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	work, err := scope.WorkDir("split")
	if err != nil {
		return nil, err
	}
	inPath, err := scope.Materialize(input, work, "input.pdf")
	if err != nil {
		return nil, err
	}

	total, err := pdfPages(inPath)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "split", "inspect", "document is not a readable PDF", err)
	}
	pages, err := parsePageSelection(pageRange, total)
	if err != nil {
		return nil, err
	}

	logger := logging.WithContext(logging.WithStage(ctx, "split"), p.logger)
	logger.Info("split requested",
		logging.Int("total_pages", total),
		logging.Int("selected_pages", len(pages)),
	)

	// pdfseparate emits one file per page; the selection is assembled from
	// those afterwards.
	sep := runner.Command{
		Binary:  p.cfg.Pdftools.PdfseparateBinary,
		Args:    []string{inPath, filepath.Join(work, "page-%d.pdf")},
		Dir:     work,
		Timeout: p.cfg.PdftoolsTimeout(),
	}
	if err := p.runPDFTool(ctx, 0, formats.EnginePdfseparate, sep, scope); err != nil {
		return nil, err
	}

	stages := 1
	outPath := filepath.Join(work, "split.pdf")
	if len(pages) == 1 {
		// pdfunite refuses a single input; the lone page already is the
		// result.
		outPath = filepath.Join(work, fmt.Sprintf("page-%d.pdf", pages[0]))
	} else {
		args := make([]string, 0, len(pages)+1)
		for _, page := range pages {
			args = append(args, filepath.Join(work, fmt.Sprintf("page-%d.pdf", page)))
		}
		args = append(args, outPath)
		unite := runner.Command{
			Binary:  p.cfg.Pdftools.PdfuniteBinary,
			Args:    args,
			Dir:     work,
			Timeout: p.cfg.PdftoolsTimeout(),
		}
		if err := p.runPDFTool(ctx, 1, formats.EnginePdfunite, unite, scope); err != nil {
			return nil, err
		}
		stages = 2
	}

	out, err := scope.Adopt(outPath, "split.pdf", formats.PDF)
	if err != nil {
		return nil, err
	}
	terminal, err := scope.Promote(out, dest)
	if err != nil {
		return nil, err
	}
	return &Result{
		Artifact: terminal,
		Pages:    len(pages),
		Stages:   stages,
		Duration: time.Since(start),
	}, nil
}

// MergePDFs concatenates the inputs into one PDF, preserving their order.
func (p *Pipeline) MergePDFs(ctx context.Context, inputs []*artifacts.Artifact, dest *artifacts.Scope) (*Result, error) {
	start := time.Now()

	if len(inputs) < 2 {
		return nil, services.Wrap(services.ErrInvalidInput, "", "validate", "merge requires at least two documents", nil)
	}
	for i, input := range inputs {
		if input == nil || input.Size == 0 {
			return nil, services.Wrap(services.ErrInvalidInput, "", "validate",
				fmt.Sprintf("document %d is empty", i+1), nil)
		}
	}

	scope, err := artifacts.NewScope(p.cfg.Paths.WorkDir)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	work, err := scope.WorkDir("merge")
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(inputs)+1)
	for i, input := range inputs {
		path, err := scope.Materialize(input, work, fmt.Sprintf("input-%d.pdf", i+1))
		if err != nil {
			return nil, err
		}
		args = append(args, path)
	}
	outPath := filepath.Join(work, "merged.pdf")
	args = append(args, outPath)

	unite := runner.Command{
		Binary:  p.cfg.Pdftools.PdfuniteBinary,
		Args:    args,
		Dir:     work,
		Timeout: p.cfg.PdftoolsTimeout(),
	}
	if err := p.runPDFTool(ctx, 0, formats.EnginePdfunite, unite, scope); err != nil {
		return nil, err
	}

	out, err := scope.Adopt(outPath, "merged.pdf", formats.PDF)
	if err != nil {
		return nil, err
	}
	terminal, err := scope.Promote(out, dest)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Artifact: terminal,
		Stages:   1,
		Duration: time.Since(start),
	}
	if pages, err := pdfPages(terminal.Path()); err == nil {
		result.Pages = pages
	}
	return result, nil
}

// runPDFTool invokes one of the page-manipulation binaries and maps failures
// to the same structured stage errors the conversion path produces.
func (p *Pipeline) runPDFTool(ctx context.Context, stage int, engine formats.Engine, cmd runner.Command, scope *artifacts.Scope) error {
	outcome, err := p.run.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if outcome.TimedOut || outcome.ExitCode != 0 {
		return &StageError{
			Stage:      stage,
			Engine:     engine,
			ExitCode:   outcome.ExitCode,
			TimedOut:   outcome.TimedOut,
			Diagnostic: p.diagnostic(outcome.Stdout, outcome.Stderr, []string{scope.Dir(), p.cfg.Paths.WorkDir}),
		}
	}
	return nil
}

// parsePageSelection expands a "1-3,5" style expression against a document of
// total pages into a sorted, deduplicated page list. Range bounds are clamped
// to the document; single pages outside it are ignored.
func parsePageSelection(expr string, total int) ([]int, error) {
	selected := map[int]struct{}{}
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err1 := strconv.Atoi(strings.TrimSpace(lo))
			to, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				return nil, services.Wrap(services.ErrInvalidInput, "split", "pages",
					fmt.Sprintf("malformed page range %q", part), nil)
			}
			if from < 1 {
				from = 1
			}
			if to > total {
				to = total
			}
			for n := from; n <= to; n++ {
				selected[n] = struct{}{}
			}
		} else {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, services.Wrap(services.ErrInvalidInput, "split", "pages",
					fmt.Sprintf("malformed page number %q", part), nil)
			}
			if n >= 1 && n <= total {
				selected[n] = struct{}{}
			}
		}
	}
	if len(selected) == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, "split", "pages",
			fmt.Sprintf("selection %q matches no page of a %d-page document", expr, total), nil)
	}
	pages := make([]int, 0, len(selected))
	for n := range selected {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}
