package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Report quota state to the daemon",
	}

	quotaCmd.AddCommand(&cobra.Command{
		Use:   "set {exhausted|available}",
		Short: "Set the quota gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var exhausted bool
			switch args[0] {
			case "exhausted":
				exhausted = true
			case "available":
				exhausted = false
			default:
				return fmt.Errorf("quota state must be %q or %q, got %q", "exhausted", "available", args[0])
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.SetQuota(cmd.Context(), exhausted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Quota marked %s\n", args[0])
			return nil
		},
	})

	return quotaCmd
}
