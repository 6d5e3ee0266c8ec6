package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"zepdf/internal/artifacts"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/pipeline"
	"zepdf/internal/runner"
)

func newMergeCommand(cmdCtx *commandContext) *cobra.Command {
	var outputFlag string

	cmd := &cobra.Command{
		Use:   "merge <first.pdf> <second.pdf> [more.pdf...]",
		Short: "Concatenate PDFs into one document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
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

			inputs := make([]*artifacts.Artifact, 0, len(args))
			for _, path := range args {
				input, err := putLocalFile(scope, path, formats.PDF)
				if err != nil {
					return err
				}
				inputs = append(inputs, input)
			}

			result, err := converter.MergePDFs(ctx, inputs, scope)
			if err != nil {
				return err
			}

			dest := strings.TrimSpace(outputFlag)
			if dest == "" {
				dest = "merged.pdf"
			}
			if err := writeArtifact(result.Artifact, dest); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, [][]string{
				{"Inputs", fmt.Sprintf("%d documents", len(inputs))},
				{"Output", dest},
				{"Pages", fmt.Sprintf("%d", result.Pages)},
				{"Bytes", fmt.Sprintf("%d", result.Artifact.Size)},
				{"Elapsed", result.Duration.Round(timeRounding).String()},
			}, nil))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination path for the merged PDF")
	return cmd
}
