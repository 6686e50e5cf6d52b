// Package run implements the gecko-profiler run command, which hosts the
// profiling session daemon.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/config"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// NewRunCmd creates the 'run' command.
func NewRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the profiler session daemon",
		Long: `Run the profiler session daemon in the foreground.

The daemon owns the profiler engine and serves the control API that the
other commands, hotkey bindings, and browser navigation hooks talk to.
Report viewers opened by a collection attach back to the same address.

Configuration is layered: defaults, then the config file, then
GECKO_PROFILER_* environment variables, then flags.

Examples:
  gecko-profiler run
  gecko-profiler run --listen 127.0.0.1:9000 --no-auto-capture
  gecko-profiler run --symbol-server https://symbols.example.com/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLayeredLoader()
			loader.BindFlags(cmd.Flags())
			cfg, err := loader.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.New(logging.Config{
				Level:  cfg.Logging.Level,
				Pretty: cfg.Logging.Pretty,
			})

			daemon, err := NewDaemon(cfg, Options{}, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := daemon.Start(ctx); err != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = daemon.Stop(shutdownCtx)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Profiler daemon listening on %s\nPress Ctrl+C to stop\n", daemon.Addr())
			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return daemon.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Path to config file")
	config.RegisterFlags(cmd.Flags())

	return cmd
}
