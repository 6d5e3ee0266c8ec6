package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zepdf/internal/deps"
	"zepdf/internal/formats"
	"zepdf/internal/logging"
	"zepdf/internal/pipeline"
	"zepdf/internal/runner"
	"zepdf/internal/server"
)

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			for _, status := range deps.CheckBinaries(deps.FromConfig(cfg)) {
				if status.Available || status.Optional {
					continue
				}
				logger.Warn("engine binary missing",
					logging.String("name", status.Name),
					logging.String("detail", status.Detail),
				)
			}

			resolver := formats.NewResolver(formats.Engine(cfg.Office.Engine))
			run := runner.NewExecRunner(cfg.MaxDiagnosticBytes(), logger)
			converter, err := pipeline.New(cfg, run, logger)
			if err != nil {
				return err
			}

			srv := server.New(cfg, logger, resolver, converter)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer srv.Stop()

			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}
