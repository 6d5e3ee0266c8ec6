package main

import (
	"context"
	"fmt"
	"io"
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

func newConvertCommand(cmdCtx *commandContext) *cobra.Command {
	var outputFlag string
	var toFlag string
	var dpiFlag int

	cmd := &cobra.Command{
		Use:   "convert <input-file>",
		Short: "Convert a local document without the HTTP service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(toFlag)
			if target == "" {
				return fmt.Errorf("--to is required (target format, e.g. pdf)")
			}

			inputPath := args[0]
			inputFormat, err := formats.Parse(filepath.Ext(inputPath))
			if err != nil {
				return fmt.Errorf("input %s: %w", inputPath, err)
			}
			outputFormat, err := formats.Parse(target)
			if err != nil {
				return err
			}

			resolver := formats.NewResolver(formats.Engine(cfg.Office.Engine))
			plan, err := resolver.Resolve(inputFormat, outputFormat)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewNop()
			run := runner.NewExecRunner(cfg.MaxDiagnosticBytes(), logger)
			converter, err := pipeline.New(cfg, run, logger)
			if err != nil {
				return err
			}

			scope, err := artifacts.NewScope(cfg.Paths.WorkDir)
			if err != nil {
				return err
			}
			defer scope.Close()

			file, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			input, err := scope.Put(file, filepath.Base(inputPath), inputFormat)
			file.Close()
			if err != nil {
				return err
			}

			result, err := converter.Execute(ctx, plan, input, pipeline.Options{ImageDPI: dpiFlag}, scope)
			if err != nil {
				return err
			}

			dest := strings.TrimSpace(outputFlag)
			if dest == "" {
				stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
				if result.Zipped {
					dest = stem + "-pages.zip"
				} else {
					dest = stem + "." + outputFormat.Ext()
				}
			}
			if err := writeArtifact(result.Artifact, dest); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Input", fmt.Sprintf("%s (%s)", inputPath, inputFormat.DisplayName())},
				{"Output", fmt.Sprintf("%s (%s)", dest, outputFormat.DisplayName())},
				{"Stages", fmt.Sprintf("%d", result.Stages)},
				{"Bytes", fmt.Sprintf("%d", result.Artifact.Size)},
				{"Elapsed", result.Duration.Round(timeRounding).String()},
			}
			if result.Pages > 0 {
				rows = append(rows, []string{"Pages", fmt.Sprintf("%d", result.Pages)})
			}
			if result.PageFiles > 0 {
				rows = append(rows, []string{"Page files", fmt.Sprintf("%d", result.PageFiles)})
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Destination path for the converted file")
	cmd.Flags().StringVar(&toFlag, "to", "", "Target format tag (pdf, docx, png, ...)")
	cmd.Flags().IntVar(&dpiFlag, "dpi", 0, "Rasterization DPI override for image output")
	return cmd
}

func writeArtifact(artifact *artifacts.Artifact, dest string) error {
	reader, err := artifact.Open()
	if err != nil {
		return err
	}
	defer reader.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create output %s: %w", dest, err)
	}
	_, err = io.Copy(out, reader)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write output %s: %w", dest, err)
	}
	return nil
}
