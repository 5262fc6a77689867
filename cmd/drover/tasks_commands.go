package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage the persisted task list",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksAddCommand(ctx))
	tasksCmd.AddCommand(newTasksClearCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued tasks in delivery order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			tasks, err := client.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Task list is empty")
				return nil
			}

			rows := make([][]string, 0, len(tasks))
			for i, task := range tasks {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					strconv.FormatInt(task.ID, 10),
					task.Text,
					task.CreatedAt.Local().Format(time.RFC3339),
				})
			}
			table := renderTable(
				[]string{"#", "ID", "Prompt", "Created"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newTasksAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <prompt>",
		Short: "Append a prompt to the task list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("prompt text must not be empty")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			id, err := client.AddTask(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added task %d\n", id)
			return nil
		},
	}
}

func newTasksClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every persisted task",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			removed, err := client.ClearTasks(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d tasks\n", removed)
			return nil
		},
	}
}
