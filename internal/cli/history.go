package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/cli/helpers"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
)

type cycleView struct {
	Started   time.Time     `header:"STARTED"`
	Status    string        `header:"STATUS"`
	Duration  time.Duration `header:"DURATION"`
	Samples   int           `header:"SAMPLES"`
	Libraries string        `header:"PRIMED"`
	URL       string        `header:"URL"`
	Error     string        `header:"ERROR"`
}

func newCycleView(c history.Cycle) cycleView {
	return cycleView{
		Started:   c.StartedAt,
		Status:    c.Status,
		Duration:  c.Duration(),
		Samples:   c.SampleCount,
		Libraries: fmt.Sprintf("%d/%d", c.Primed, len(c.Libraries)),
		URL:       c.SourceURL,
		Error:     c.Error,
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		addr   string
		format string
		limit  int
		status string
		since  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past collections",
		Long: `List recorded collection cycles, newest first.

Examples:
  gecko-profiler history
  gecko-profiler history --since 24h --status failed
  gecko-profiler history -o json --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && status != history.StatusDelivered && status != history.StatusFailed {
				return fmt.Errorf("--status must be %q or %q", history.StatusDelivered, history.StatusFailed)
			}
			from, err := helpers.ParseSince(since, time.Now())
			if err != nil {
				return err
			}

			cycles, err := helpers.NewDaemonClient(addr).History(cmd.Context(), history.Filter{
				Status: status,
				Since:  from,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if format != string(helpers.FormatTable) && format != string(helpers.FormatCSV) {
				return helpers.Render(cmd, format, historyFormats, cycles)
			}
			if len(cycles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No collections recorded")
				return nil
			}
			views := make([]cycleView, len(cycles))
			for i, c := range cycles {
				views[i] = newCycleView(c)
			}
			return helpers.Render(cmd, format, historyFormats, views)
		},
	}

	helpers.AddDaemonFlag(cmd, &addr)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, historyFormats)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of collections to show (0 for all)")
	cmd.Flags().StringVar(&status, "status", "", "Only show delivered or failed collections")
	cmd.Flags().StringVar(&since, "since", "", "Only show collections since a duration ago or a time (e.g. 1h, 2026-03-01)")

	return cmd
}

var historyFormats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatYAML, helpers.FormatCSV}
