package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Control the prompt queue run",
	}

	queueCmd.AddCommand(newQueueStartCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueueSkipCommand(ctx))
	queueCmd.AddCommand(newQueueStopCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))

	return queueCmd
}

func newQueueStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a run through the task list",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.QueueCommand(cmd.Context(), "start"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue run started")
			return nil
		},
	}
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause silence-driven advancement",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.QueueCommand(cmd.Context(), "pause"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue paused")
			return nil
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.QueueCommand(cmd.Context(), "resume"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue resumed")
			return nil
		},
	}
}

func newQueueSkipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Advance past the current item immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.QueueCommand(cmd.Context(), "skip"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Skipped current item")
			return nil
		},
	}
}

func newQueueStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stopped, err := client.QueueStop(cmd.Context())
			if err != nil {
				return err
			}
			if stopped {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue run stopped")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing was running")
			}
			return nil
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Stop the run and clear the persisted task list",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.QueueCommand(cmd.Context(), "reset"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue reset")
			return nil
		},
	}
}
