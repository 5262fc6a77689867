package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTargetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List connected webview targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			targets, err := client.Targets(cmd.Context())
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No targets connected")
				return nil
			}

			rows := make([][]string, 0, len(targets))
			for _, target := range targets {
				rows = append(rows, []string{
					target.ID,
					target.Title,
					yesNo(target.Injected),
					target.URL,
				})
			}
			table := renderTable(
				[]string{"ID", "Title", "Injected", "URL"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
