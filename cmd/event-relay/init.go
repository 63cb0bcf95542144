package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagForce bool

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
}

const sampleConfig = `version: 1
global:
  db_driver: sqlite
  db_path: ./event-relay.db
  namespace: events
  api_key: ${SINK_API_KEY}
  settings_refresh: 15s
  rpc_rate_limit: 10
  rpc_burst: 5
  parallelism: 1
defaults:
  chain_id: 1
  targets_per_cycle: 5
  poll_interval_ms: 10000
endpoints: {}
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !flagForce {
			return fmt.Errorf("%s already exists (use --force)", cfgPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.WriteFile(cfgPath, []byte(sampleConfig), 0o600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
		return nil
	},
}
