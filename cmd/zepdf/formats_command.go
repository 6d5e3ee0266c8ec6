package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zepdf/internal/formats"
)

func newFormatsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			resolver := formats.NewResolver(formats.Engine(cfg.Office.Engine))

			rows := make([][]string, 0, 64)
			for _, pair := range resolver.Supported() {
				plan, err := resolver.Resolve(pair[0], pair[1])
				if err != nil {
					continue
				}
				engines := make([]string, 0, len(plan.Stages))
				for _, stage := range plan.Stages {
					engines = append(engines, string(stage.Engine))
				}
				rows = append(rows, []string{
					string(pair[0]),
					string(pair[1]),
					fmt.Sprintf("%d", len(plan.Stages)),
					joinEngines(engines),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"From", "To", "Stages", "Engines"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func joinEngines(engines []string) string {
	result := ""
	for i, engine := range engines {
		if i > 0 {
			result += " > "
		}
		result += engine
	}
	return result
}
