package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregated payload counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(report.Stats) == 0 && len(report.AwayActions) == 0 {
				fmt.Fprintln(out, "No counters reported")
				return nil
			}

			rows := make([][]string, 0, len(report.Stats)+len(report.AwayActions))
			rows = append(rows, counterRows("stats", report.Stats)...)
			rows = append(rows, counterRows("away", report.AwayActions)...)
			table := renderTable(
				[]string{"Source", "Counter", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}

	statsCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Zero the payload counters on every connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.ResetStats(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Counters reset")
			return nil
		},
	})

	return statsCmd
}

func counterRows(source string, counters map[string]float64) [][]string {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{
			source,
			name,
			strconv.FormatFloat(counters[name], 'f', -1, 64),
		})
	}
	return rows
}
