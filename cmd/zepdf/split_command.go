package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"zepdf/internal/artifacts"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/pipeline"
	"zepdf/internal/runner"
)

func newSplitCommand(cmdCtx *commandContext) *cobra.Command {
	var outputFlag string
	var pagesFlag string

	cmd := &cobra.Command{
		Use:   "split <input.pdf>",
		Short: "Extract a page selection from a PDF into a new PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			pages := strings.TrimSpace(pagesFlag)
			if pages == "" {
				return fmt.Errorf("--pages is required (e.g. 1-3,5)")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewNop()
			converter, err := pipeline.New(cfg, runner.NewExecRunner(cfg.MaxDiagnosticBytes(), logger), logger)
			if err != nil {
				return err
			}

			scope, err := artifacts.NewScope(cfg.Paths.WorkDir)
			if err != nil {
				return err
			}
			defer scope.Close()

			input, err := putLocalFile(scope, args[0], formats.PDF)
			if err != nil {
				return err
			}

			result, err := converter.SplitPDF(ctx, input, pages, scope)
			if err != nil {
				return err
			}

			dest := strings.TrimSpace(outputFlag)
			if dest == "" {
				stem := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				dest = stem + "-split.pdf"
			}
			if err := writeArtifact(result.Artifact, dest); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, [][]string{
				{"Input", args[0]},
				{"Output", dest},
				{"Pages", fmt.Sprintf("%d", result.Pages)},
				{"Bytes", fmt.Sprintf("%d", result.Artifact.Size)},
				{"Elapsed", result.Duration.Round(timeRounding).String()},
			}, nil))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination path for the extracted PDF")
	cmd.Flags().StringVar(&pagesFlag, "pages", "", "Page selection (e.g. 1-3,5)")
	return cmd
}

func putLocalFile(scope *artifacts.Scope, path string, format formats.Format) (*artifacts.Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return scope.Put(file, filepath.Base(path), format)
}
