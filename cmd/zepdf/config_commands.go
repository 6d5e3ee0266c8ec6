package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zepdf/internal/config"
)

func newConfigCommand(cmdCtx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(cmdCtx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}

			if err := config.WriteSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the paths and engine sections before starting the service.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func newConfigShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Config file", cmdCtx.configPath},
				{"API bind", cfg.Paths.APIBind},
				{"Work dir", cfg.Paths.WorkDir},
				{"Log dir", cfg.Paths.LogDir},
				{"Profile dir", cfg.Paths.ProfileDir},
				{"Office engine", cfg.Office.Engine},
				{"Office binary", cfg.OfficeBinary()},
				{"Office timeout", cfg.OfficeTimeout().String()},
				{"Raster timeout", cfg.RasterTimeout().String()},
				{"Default DPI", fmt.Sprintf("%d", cfg.Raster.DefaultDPI)},
				{"Max upload", fmt.Sprintf("%d MiB", cfg.Limits.MaxUploadMiB)},
				{"Log level", cfg.Logging.Level},
				{"Log format", cfg.Logging.Format},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows, nil))
			return nil
		},
	}
}
