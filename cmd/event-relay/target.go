package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/devblac/event-relay/internal/dispatch"
	"github.com/devblac/event-relay/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	flagAddress     string
	flagRPCURL      string
	flagStartBlock  uint64
	flagMaxBlocks   uint64
	flagPaused      bool
	flagResetCursor bool
)

func init() {
	targetAddCmd.Flags().StringVar(&flagAddress, "address", "", "Contract address")
	targetAddCmd.Flags().StringVar(&flagRPCURL, "rpc", "", "RPC endpoint URL")
	targetAddCmd.Flags().Uint64Var(&flagStartBlock, "start-block", 0, "First block to scan")
	targetAddCmd.Flags().Uint64Var(&flagMaxBlocks, "max-blocks", storage.DefaultMaxBlocksPerQuery, "Block range cap per pass")
	targetAddCmd.Flags().BoolVar(&flagPaused, "paused", false, "Provision the target paused")
	targetAddCmd.Flags().BoolVar(&flagResetCursor, "reset-cursor", false, "Overwrite the cursor of an existing target with --start-block")

	targetCmd.AddCommand(targetAddCmd, targetPauseCmd, targetResumeCmd, targetListCmd)
}

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Provision scan targets",
}

var targetAddCmd = &cobra.Command{
	Use:   "add <identifier>",
	Short: "Create or reconfigure a scan target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if _, err := dispatch.Default().Resolve(id); err != nil {
			if errors.Is(err, dispatch.ErrNotFound) {
				return fmt.Errorf("%w (known: %s)", err, strings.Join(dispatch.Default().Identifiers(), ", "))
			}
			return err
		}
		if !common.IsHexAddress(flagAddress) {
			return fmt.Errorf("invalid contract address %q", flagAddress)
		}
		if flagRPCURL == "" {
			return errors.New("--rpc is required")
		}
		if flagMaxBlocks == 0 {
			return errors.New("--max-blocks must be positive")
		}

		ctx := cmd.Context()
		_, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		t := storage.Target{
			Identifier:        id,
			ContractAddress:   flagAddress,
			LastScannedBlock:  flagStartBlock,
			MaxBlocksPerQuery: flagMaxBlocks,
			Paused:            flagPaused,
			RPCURL:            flagRPCURL,
		}
		_, getErr := store.GetTarget(ctx, id)
		isNew := errors.Is(getErr, storage.ErrTargetNotFound)
		if getErr != nil && !isNew {
			return getErr
		}
		if err := store.UpsertTarget(ctx, t, isNew || flagResetCursor); err != nil {
			return err
		}
		verb := "updated"
		if isNew {
			verb = "added"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "target %s %s\n", id, verb)
		return nil
	},
}

var targetPauseCmd = &cobra.Command{
	Use:   "pause <identifier>",
	Short: "Stop scanning a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, args[0], true)
	},
}

var targetResumeCmd = &cobra.Command{
	Use:   "resume <identifier>",
	Short: "Resume scanning a target from its cursor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, args[0], false)
	},
}

func setPaused(cmd *cobra.Command, id string, paused bool) error {
	ctx := cmd.Context()
	_, store, err := loadStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SetPaused(ctx, id, paused); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "target %s paused=%t\n", id, paused)
	return nil
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		targets, err := store.ListTargets(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TARGET\tADDRESS\tCURSOR\tMAX_BLOCKS\tPAUSED")
		for _, t := range targets {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\n", t.Identifier, t.ContractAddress, t.LastScannedBlock, t.MaxBlocksPerQuery, t.Paused)
		}
		return w.Flush()
	},
}
