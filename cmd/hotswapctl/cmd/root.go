package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap/logging"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var ErrUnknownLogFormat = errors.New("unknown log format")

// NewRootCommand creates the root command for hotswapctl
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotswapctl",
		Short: "hotswapctl - Inspect and run a hot-swap component runtime",
		Long: `hotswapctl inspects candidate manifests and lifecycle snapshots, and
serves a hot-swap runtime with read-only diagnostics over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "console", "Log format (console or json)")

	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewExplainCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("hotswapctl v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewLogger builds the zerolog logger used by every command.
func NewLogger(out io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}

	var logger zerolog.Logger
	switch format {
	case "", "console":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		})
	case "json":
		logger = zerolog.New(out)
	default:
		return zerolog.Nop(), fmt.Errorf("%w: %q", ErrUnknownLogFormat, format)
	}
	return logger.Level(lvl).With().Timestamp().Str("app", "hotswapctl").Logger(), nil
}

// commandLogger reads the persistent log flags. Overrides replace flag
// values the user did not set explicitly.
func commandLogger(cmd *cobra.Command, levelOverride, formatOverride string) (logging.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	if levelOverride != "" && !cmd.Flags().Changed("log-level") {
		level = levelOverride
	}
	if formatOverride != "" && !cmd.Flags().Changed("log-format") {
		format = formatOverride
	}

	logger, err := NewLogger(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return nil, err
	}
	return logging.NewZerolog(logger), nil
}
