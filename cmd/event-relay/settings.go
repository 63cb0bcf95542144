package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagChainID         int64
	flagTargetsPerCycle int
	flagPollIntervalMS  int64
)

func init() {
	settingsSetCmd.Flags().Int64Var(&flagChainID, "chain-id", 0, "Chain id attached to forwarded records")
	settingsSetCmd.Flags().IntVar(&flagTargetsPerCycle, "targets-per-cycle", 0, "Targets scanned per cycle")
	settingsSetCmd.Flags().Int64Var(&flagPollIntervalMS, "poll-interval-ms", 0, "Delay between cycles in milliseconds")

	settingsCmd.AddCommand(settingsSetCmd, settingsShowCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the live poll settings",
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update poll settings; a running orchestrator picks them up on its next refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if !flags.Changed("chain-id") && !flags.Changed("targets-per-cycle") && !flags.Changed("poll-interval-ms") {
			return errors.New("nothing to set")
		}

		ctx := cmd.Context()
		cfg, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		st, ok, err := store.LoadSettings(ctx)
		if err != nil {
			return err
		}
		if !ok {
			st = defaultSettings(cfg)
		}
		if flags.Changed("chain-id") {
			st.ChainID = flagChainID
		}
		if flags.Changed("targets-per-cycle") {
			st.TargetsPerCycle = flagTargetsPerCycle
		}
		if flags.Changed("poll-interval-ms") {
			st.PollIntervalMS = flagPollIntervalMS
		}
		if st.ChainID <= 0 || st.TargetsPerCycle <= 0 || st.PollIntervalMS <= 0 {
			return errors.New("settings must be positive")
		}
		if err := store.SaveSettings(ctx, st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "settings saved: chain_id=%d targets_per_cycle=%d poll_interval_ms=%d\n",
			st.ChainID, st.TargetsPerCycle, st.PollIntervalMS)
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored poll settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		st, ok, err := store.LoadSettings(ctx)
		if err != nil {
			return err
		}
		source := "store"
		if !ok {
			st, source = defaultSettings(cfg), "config defaults"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "chain_id=%d targets_per_cycle=%d poll_interval_ms=%d (%s)\n",
			st.ChainID, st.TargetsPerCycle, st.PollIntervalMS, source)
		return nil
	},
}
