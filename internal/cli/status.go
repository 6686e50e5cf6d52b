package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/cli/helpers"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/session"
)

var outputFormats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatYAML}

// statusView flattens session.Status for table output.
type statusView struct {
	State           string `header:"State"`
	Collecting      bool   `header:"Collecting"`
	EngineRunning   bool   `header:"Engine running"`
	AutoCapture     bool   `header:"Auto capture"`
	PendingCapture  bool   `header:"Capture pending"`
	LastURL         string `header:"Last page"`
	Viewers         int    `header:"Open viewers"`
	CompletedCycles int    `header:"Collections"`
	LastCycle       string `header:"Last collection"`
}

func newStatusView(st *session.Status) statusView {
	v := statusView{
		State:           st.State.String(),
		Collecting:      st.Active,
		EngineRunning:   st.EngineRunning,
		AutoCapture:     st.AutoCaptureEnabled,
		PendingCapture:  st.PendingAutoCapture,
		LastURL:         st.LastURL,
		Viewers:         st.Viewers,
		CompletedCycles: st.CompletedCycles,
	}
	if c := st.LastCycle; c != nil {
		v.LastCycle = c.Status + " " + c.FinishedAt.Local().Format(time.DateTime)
		if c.Error != "" {
			v.LastCycle += " (" + c.Error + ")"
		}
	}
	return v
}

// renderStatus prints st as a table, or as-is for structured formats.
func renderStatus(cmd *cobra.Command, format string, st *session.Status) error {
	if format == string(helpers.FormatTable) {
		return helpers.Render(cmd, format, outputFormats, newStatusView(st))
	}
	return helpers.Render(cmd, format, outputFormats, st)
}

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var (
		addr   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the profiling session status",
		Long: `Display the daemon's session state, whether the profiler engine is
sampling, the auto-capture setting, and the most recent collection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			st, err := helpers.NewDaemonClient(addr).Status(ctx)
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
