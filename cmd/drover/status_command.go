package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Daemon", colorize)

			daemonKind := statusError
			daemonMessage := "not running"
			if status.Running {
				daemonKind = statusOK
				daemonMessage = fmt.Sprintf("pid %d", status.PID)
			}
			lines = append(lines, renderStatusLine("Daemon", daemonKind, daemonMessage, colorize))

			leaseKind := statusWarn
			leaseMessage := "standby"
			if status.LeaseActive {
				leaseKind = statusOK
				leaseMessage = fmt.Sprintf("leader (%s)", status.InstanceID)
			}
			lines = append(lines, renderStatusLine("Lease", leaseKind, leaseMessage, colorize))

			targetKind := statusWarn
			targetMessage := "no targets connected"
			if len(status.Targets) > 0 {
				targetKind = statusOK
				targetMessage = fmt.Sprintf("%d connected", len(status.Targets))
			}
			lines = append(lines, renderStatusLine("Targets", targetKind, targetMessage, colorize))

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Queue", colorize)...)

			sched := status.Scheduler
			queueKind := statusInfo
			queueMessage := "idle"
			switch {
			case sched.Running && sched.Paused:
				queueKind = statusWarn
				queueMessage = fmt.Sprintf("paused at %d/%d", sched.QueueIndex+1, sched.QueueLength)
			case sched.Running:
				queueKind = statusOK
				queueMessage = fmt.Sprintf("running %d/%d", sched.QueueIndex+1, sched.QueueLength)
			}
			lines = append(lines, renderStatusLine("Queue", queueKind, queueMessage, colorize))
			lines = append(lines, renderStatusLine("Mode", statusInfo, sched.Mode, colorize))
			lines = append(lines, renderStatusLine("Enabled", statusInfo, yesNo(sched.Enabled), colorize))

			if sched.CurrentPrompt != "" {
				lines = append(lines, renderStatusLine("Current prompt", statusInfo, sched.CurrentPrompt, colorize))
			}
			if sched.Conversation != "" {
				lines = append(lines, renderStatusLine("Conversation", statusInfo, sched.Conversation, colorize))
			}

			quotaKind := statusOK
			quotaMessage := "available"
			if sched.QuotaExhausted {
				quotaKind = statusWarn
				quotaMessage = "exhausted"
			}
			lines = append(lines, renderStatusLine("Quota", quotaKind, quotaMessage, colorize))

			if sched.LastError != "" {
				lines = append(lines, renderStatusLine("Last error", statusError, sched.LastError, colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}
