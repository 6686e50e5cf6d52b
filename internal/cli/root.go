// Package cli implements the gecko-profiler command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/cli/config"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/cli/run"
	"github.com/digitarald/Gecko-Profiler-Addon/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "gecko-profiler",
	Short: "Capture browser profiles and hand them to the report viewer",
	Long: `gecko-profiler runs a profiling session alongside your browser.

The daemon ('gecko-profiler run') keeps the sampling profiler armed,
restarts it when tabs open, and captures a profile shortly after each page
load. Every capture is opened in the report viewer, which resolves native
symbols through the daemon's symbol cache.

The remaining commands talk to a running daemon:
- status, toggle, collect, auto-capture, restart: session actions
- navigate: report tab navigation events
- symbols: resolve symbols for loaded libraries
- history: list past collections`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(run.NewRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newToggleCmd())
	rootCmd.AddCommand(newCollectCmd())
	rootCmd.AddCommand(newAutoCaptureCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newNavigateCmd())
	rootCmd.AddCommand(newSymbolsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("gecko-profiler version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
