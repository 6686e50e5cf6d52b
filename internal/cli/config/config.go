// Package config implements the 'gecko-profiler config' command family.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/cli/helpers"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect gecko-profiler configuration",
		Long: `Inspect gecko-profiler configuration.

Configuration Priority:
  1. Command line flags of 'gecko-profiler run' (highest)
  2. GECKO_PROFILER_* environment variables
  3. Config file (~/.gecko-profiler/config.yaml)
  4. Built-in defaults

Environment Variables:
  GECKO_PROFILER_CONFIG  Override config directory (default: ~/.gecko-profiler)`,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Path to config file")

	cmd.AddCommand(newShowCmd(&configPath))
	cmd.AddCommand(newValidateCmd(&configPath))
	cmd.AddCommand(newPathCmd(&configPath))

	return cmd
}

// newShowCmd creates the 'config show' command.
func newShowCmd(configPath *string) *cobra.Command {
	var format string
	formats := []helpers.OutputFormat{helpers.FormatYAML, helpers.FormatJSON}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration the daemon would run with after applying
defaults, the config file, and environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLayeredLoader().Load(*configPath)
			if err != nil {
				return err
			}

			if format == string(helpers.FormatYAML) {
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return helpers.Render(cmd, format, formats, cfg)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatYAML, formats)

	return cmd
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.NewLayeredLoader().Load(*configPath); err != nil {
				return fmt.Errorf("configuration is invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration is valid (%s)\n", *configPath)
			return nil
		},
	}
}

// newPathCmd creates the 'config path' command.
func newPathCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), *configPath)
		},
	}
}
