package main

import (
	"context"
	"fmt"
	"time"

	"github.com/devblac/event-relay/internal/dispatch"
	"github.com/devblac/event-relay/internal/health"
	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/spf13/cobra"
)

const defaultRPCTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, provisioned targets and RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		cfg, store, err := loadStore(ctx)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		defer store.Close()
		fmt.Fprintf(out, "config OK (version %d, %s namespace %q)\n", cfg.Version, cfg.Global.DBDriver, cfg.Global.Namespace)

		targets, err := store.ListTargets(ctx)
		if err != nil {
			return err
		}
		table := dispatch.Default()
		failures := 0
		for _, t := range targets {
			if _, err := table.Resolve(t.Identifier); err != nil {
				failures++
				fmt.Fprintf(out, "- target %s: ERROR %v\n", t.Identifier, err)
			}
		}

		for _, url := range health.RPCURLs(targets, true) {
			chainID, err := pingChainID(ctx, url)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- rpc %s: ERROR %v\n", health.Host(url), err)
				continue
			}
			fmt.Fprintf(out, "- rpc %s: chainId %d OK\n", health.Host(url), chainID)
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingChainID(ctx context.Context, url string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()
	id, err := evm.ProbeChainID(ctx, url)
	if err != nil {
		return 0, err
	}
	return id.Int64(), nil
}
