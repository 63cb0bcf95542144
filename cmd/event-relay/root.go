package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/devblac/event-relay/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "event-relay",
		Short: "Incremental contract event scanner and HTTP relay",
	}
)

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error); defaults to LOG_LEVEL")

	rootCmd.AddCommand(
		versionCmd,
		initCmd,
		validateCmd,
		runCmd,
		stateCmd,
		targetCmd,
		endpointCmd,
		settingsCmd,
		exportCmd,
	)
}

// Execute runs the root command tree.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func newLogger() *slog.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	return logging.NewWithLevel(level)
}
