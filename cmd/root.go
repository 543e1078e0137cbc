// Package cmd defines and implements the CLI commands for the forumharvest
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archivist-tools/forumharvest/internal/config"
	"github.com/archivist-tools/forumharvest/internal/logging"
	"github.com/archivist-tools/forumharvest/internal/metrics"
)

// newRootCmd creates and configures the root command. Configuration and the
// logger are initialized once in PersistentPreRunE and shared with the
// subcommands by pointer.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		cfg     config.Config
		logger  *zap.Logger
	)

	cmd := &cobra.Command{
		Use:   "forumharvest",
		Short: "Converts archived forum thread pages into a relational dataset.",
		Long: `forumharvest walks a directory tree of saved forum thread pages,
parses each page into thread, user and post records, and merges them
idempotently into a relational store.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err = logging.New(logging.Options{Development: cfg.Logging.Development})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			metrics.Init()
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				logger.Sync() //nolint:errcheck // best-effort flush
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	cmd.AddCommand(newRunCmd(&cfg, &logger))

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
