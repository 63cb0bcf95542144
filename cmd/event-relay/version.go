package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), versionString(version, commit, date))
		return nil
	},
}

// versionString falls back to the module build info for `go install` builds,
// which carry no ldflags.
func versionString(v, c, d string) string {
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	parts := []string{"event-relay", v}
	if c != "" && c != "none" {
		parts = append(parts, "commit", c)
	}
	if d != "" {
		parts = append(parts, "built", d)
	}
	return strings.Join(parts, " ")
}
