package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rebind/internal/deps"
)

func newDoctorCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				state := "ok"
				if !status.Available {
					state = "missing"
					if status.Optional {
						state = "missing (optional)"
					}
				}
				detail := status.Detail
				if detail == "" {
					detail = status.Description
				}
				rows = append(rows, []string{status.Name, status.Command, state, detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Dependency", "Command", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required dependency(ies) unavailable", len(missing))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All required dependencies available.")
			return nil
		},
	}
}
