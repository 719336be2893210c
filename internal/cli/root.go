package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string

	logger zerolog.Logger
)

// NewRootCmd creates the root cobra command for the tinysched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tinysched",
		Short: "Minimal tick scheduler with software timers",
		Long:  "tinysched drives a priority task scheduler and timer service against a simulated workload.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lvl, err := zerolog.ParseLevel(flagLogLevel)
			if err != nil {
				lvl = zerolog.InfoLevel
			}
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
				With().Timestamp().Logger().Level(lvl)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "config.yml", "Scheduler config file (YAML)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd())

	return root
}
