package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/cli/helpers"
)

type librarySymbolsView struct {
	Library    string `header:"LIBRARY"`
	BreakpadID string `header:"BREAKPAD ID"`
	Symbols    int    `header:"SYMBOLS"`
	Error      string `header:"ERROR"`
}

func newSymbolsCmd() *cobra.Command {
	var (
		addr   string
		format string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "Resolve symbols for loaded libraries",
		Long: `Resolve symbol tables for the libraries loaded in the profiled process
whose names start with --prefix (case-insensitive), warming the daemon's
symbol cache.

Examples:
  gecko-profiler symbols --prefix libnss3
  gecko-profiler symbols --prefix libnss -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			libs, err := helpers.NewLongDaemonClient(addr).Symbols(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			if format != string(helpers.FormatTable) {
				return helpers.Render(cmd, format, outputFormats, libs)
			}
			if len(libs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No loaded libraries match %q\n", prefix)
				return nil
			}
			views := make([]librarySymbolsView, len(libs))
			for i, l := range libs {
				views[i] = librarySymbolsView{
					Library:    l.Library.PdbName,
					BreakpadID: l.Library.BreakpadID,
					Symbols:    l.Symbols,
					Error:      l.Error,
				}
			}
			return helpers.Render(cmd, format, outputFormats, views)
		},
	}

	helpers.AddDaemonFlag(cmd, &addr)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, outputFormats)
	cmd.Flags().StringVar(&prefix, "prefix", "libnss3", "Library name prefix")

	return cmd
}
