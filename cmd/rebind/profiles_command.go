package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rebind/internal/profiles"
)

func newProfilesCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List available device profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := profiles.Load(cfg.Paths.ProfileDir)
			if err != nil {
				return err
			}

			rows := make([][]string, 0)
			for _, p := range catalog.List() {
				name := p.Name
				if name == profiles.DefaultName {
					name += " (default)"
				}
				mode := "color"
				if p.Grayscale {
					mode = "grayscale"
				}
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%dx%d", p.Width, p.Height),
					strconv.Itoa(p.ColorDepth) + "-bit",
					mode,
					p.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Profile", "Resolution", "Depth", "Mode", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
