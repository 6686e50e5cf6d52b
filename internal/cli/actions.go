package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/cli/helpers"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/httpapi"
)

func newToggleCmd() *cobra.Command {
	var (
		addr   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Start or stop the profiler",
		Long: `Start the profiler engine if it is stopped, or stop it if it is running.
Ignored while a collection is in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := helpers.NewDaemonClient(addr).ToggleStartStop(cmd.Context())
			if err != nil {
				return err
			}
			return renderStatus(cmd, format, st)
		},
	}

	helpers.AddDaemonFlag(cmd, &addr)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, outputFormats)
	return cmd
}

func newCollectCmd() *cobra.Command {
	var (
		addr   string
		format string
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Capture a profile and open it in the report viewer",
		Long: `Capture the current profile, stop the engine, and open a report viewer
with the profile. Symbols for loaded libraries are fetched while the
viewer opens.

Without --wait the command returns as soon as the collection has started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := helpers.NewDaemonClient(addr)
			if wait {
				client = helpers.NewLongDaemonClient(addr)
			}

			res, err := client.Collect(cmd.Context(), wait)
			if err != nil {
				return err
			}
			if res.Cycle == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Collection started")
				return nil
			}
			if format == string(helpers.FormatTable) {
				return helpers.Render(cmd, format, outputFormats, newCycleView(*res.Cycle))
			}
			return helpers.Render(cmd, format, outputFormats, res.Cycle)
		},
	}

	helpers.AddDaemonFlag(cmd, &addr)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, outputFormats)
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the profile is delivered to the viewer")
	return cmd
}

func newAutoCaptureCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "auto-capture",
		Short: "Toggle capturing a profile after each page load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := helpers.NewDaemonClient(addr).ToggleAutoCapture(cmd.Context())
			if err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Auto capture %s\n", state)
			return nil
		},
	}

	helpers.AddDaemonFlag(cmd, &addr)
	return cmd
}

func newRestartCmd() *cobra.Command {
	var (
		addr   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart a running profiler with an empty buffer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := helpers.NewDaemonClient(addr).Restart(cmd.Context())
			if err != nil {
				return err
			}
			return renderStatus(cmd, format, st)
		},
	}

	helpers.AddDaemonFlag(cmd, &addr)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, outputFormats)
	return cmd
}

func newNavigateCmd() *cobra.Command {
	var (
		addr    string
		navType string
	)

	cmd := &cobra.Command{
		Use:   "navigate <url>",
		Short: "Report a tab navigation to the daemon",
		Long: `Report a browser navigation event. Browser integrations call this (or
POST /events/navigation) as tabs open and pages finish loading.

  open  restarts a running profiler
  load  schedules an automatic capture for http(s) pages

Examples:
  gecko-profiler navigate --type open about:newtab
  gecko-profiler navigate --type load https://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if navType != httpapi.NavigationOpen && navType != httpapi.NavigationLoad {
				return fmt.Errorf("--type must be %q or %q", httpapi.NavigationOpen, httpapi.NavigationLoad)
			}
			res, err := helpers.NewDaemonClient(addr).Navigate(cmd.Context(), httpapi.NavigationEvent{Type: navType, URL: args[0]})
			if err != nil {
				return err
			}
			if res.Scheduled {
				fmt.Fprintln(cmd.OutOrStdout(), "Capture scheduled")
			}
			return nil
		},
	}

	helpers.AddDaemonFlag(cmd, &addr)
	cmd.Flags().StringVar(&navType, "type", httpapi.NavigationLoad, "Event type (open, load)")
	_ = cmd.RegisterFlagCompletionFunc("type", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{httpapi.NavigationOpen, httpapi.NavigationLoad}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}
