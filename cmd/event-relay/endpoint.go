package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	endpointCmd.AddCommand(endpointSetCmd, endpointListCmd)
}

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Manage event sink destinations",
}

var endpointSetCmd = &cobra.Command{
	Use:   "set <event> <url>",
	Short: "Map an event destination key to a sink URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		event, dest := args[0], args[1]
		u, err := url.Parse(dest)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid url %q", dest)
		}

		ctx := cmd.Context()
		_, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SetEndpoint(ctx, event, dest); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "endpoint %s set\n", event)
		return nil
	},
}

var endpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List event sink destinations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		endpoints, err := store.ListEndpoints(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tURL")
		for _, e := range endpoints {
			fmt.Fprintf(w, "%s\t%s\n", e.Event, e.URL)
		}
		return w.Flush()
	},
}
