package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zepdf/internal/deps"
)

func newDepsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external engine binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.FromConfig(cfg))
			rows := make([][]string, 0, len(statuses))
			missing := 0
			for _, status := range statuses {
				detail := status.Detail
				if status.Available {
					detail = status.Command
				}
				rows = append(rows, []string{
					status.Name,
					yesNo(status.Available),
					yesNo(status.Optional),
					detail,
				})
				if !status.Available && !status.Optional {
					missing++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Engine", "Available", "Optional", "Detail"},
				rows,
				nil,
			))
			if missing > 0 {
				return fmt.Errorf("%d required engine(s) missing", missing)
			}
			return nil
		},
	}
}
