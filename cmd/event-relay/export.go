package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/devblac/event-relay/internal/storage"
	"github.com/spf13/cobra"
)

var flagFormat string

func init() {
	exportCmd.Flags().StringVar(&flagFormat, "format", "json", "Output format (json|csv)")
}

var exportCmd = &cobra.Command{
	Use:       "export <targets|endpoints>",
	Short:     "Export targets or endpoints as json or csv",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"targets", "endpoints"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagFormat != "json" && flagFormat != "csv" {
			return fmt.Errorf("unsupported format %q", flagFormat)
		}
		ctx := cmd.Context()
		_, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		switch args[0] {
		case "targets":
			targets, err := store.ListTargets(ctx)
			if err != nil {
				return err
			}
			return writeTargets(out, flagFormat, targets)
		default:
			endpoints, err := store.ListEndpoints(ctx)
			if err != nil {
				return err
			}
			return writeEndpoints(out, flagFormat, endpoints)
		}
	},
}

type targetRow struct {
	Identifier        string `json:"identifier"`
	ContractAddress   string `json:"contractAddress"`
	LastScannedBlock  uint64 `json:"lastScannedBlock"`
	MaxBlocksPerQuery uint64 `json:"maxBlocksPerQuery"`
	Paused            bool   `json:"paused"`
}

// writeTargets leaves rpc urls out; they usually embed provider keys.
func writeTargets(w io.Writer, format string, targets []storage.Target) error {
	rows := make([]targetRow, 0, len(targets))
	for _, t := range targets {
		rows = append(rows, targetRow{t.Identifier, t.ContractAddress, t.LastScannedBlock, t.MaxBlocksPerQuery, t.Paused})
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"identifier", "contract_address", "last_scanned_block", "max_blocks_per_query", "paused"})
	for _, r := range rows {
		_ = cw.Write([]string{
			r.Identifier,
			r.ContractAddress,
			strconv.FormatUint(r.LastScannedBlock, 10),
			strconv.FormatUint(r.MaxBlocksPerQuery, 10),
			strconv.FormatBool(r.Paused),
		})
	}
	cw.Flush()
	return cw.Error()
}

func writeEndpoints(w io.Writer, format string, endpoints []storage.Endpoint) error {
	if format == "json" {
		m := make(map[string]string, len(endpoints))
		for _, e := range endpoints {
			m[e.Event] = e.URL
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"event", "url"})
	for _, e := range endpoints {
		_ = cw.Write([]string{e.Event, e.URL})
	}
	cw.Flush()
	return cw.Error()
}
