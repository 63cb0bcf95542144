package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/devblac/event-relay/internal/storage"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show cursors and scan lag per target",
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
		dialer := evm.NewDialer(nil, 0, 0, nil)
		defer dialer.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TARGET\tCURSOR\tHEAD\tLAG\tPAUSED")
		for _, t := range targets {
			head, lag := "-", "-"
			if h, err := headBlock(ctx, dialer, t); err == nil {
				head = fmt.Sprint(h)
				lag = fmt.Sprint(scanLag(t.LastScannedBlock, h))
			} else {
				head = "error"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\n", t.Identifier, t.LastScannedBlock, head, lag, t.Paused)
		}
		return w.Flush()
	},
}

func headBlock(ctx context.Context, dialer *evm.Dialer, t storage.Target) (uint64, error) {
	if t.RPCURL == "" {
		return 0, fmt.Errorf("no rpc url")
	}
	ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()
	cli, err := dialer.Client(ctx, t.RPCURL)
	if err != nil {
		return 0, err
	}
	return cli.HeadBlock(ctx)
}

// scanLag is the number of scannable blocks the cursor is behind head. The head
// block itself is never scanned.
func scanLag(cursor, head uint64) uint64 {
	if head == 0 || head-1 <= cursor {
		return 0
	}
	return head - 1 - cursor
}
