package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newConversationCommand(ctx *commandContext) *cobra.Command {
	conversationCmd := &cobra.Command{
		Use:   "conversation",
		Short: "Pin deliveries to one conversation",
	}

	conversationCmd.AddCommand(&cobra.Command{
		Use:   "set <target>",
		Short: "Route deliveries to a conversation target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(args[0])
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.SetConversation(cmd.Context(), target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deliveries pinned to %s\n", target)
			return nil
		},
	})

	conversationCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Return to ranked target selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.SetConversation(cmd.Context(), ""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation pin cleared")
			return nil
		},
	})

	return conversationCmd
}
