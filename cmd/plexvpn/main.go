// Package main is the entry point for the plexvpn binary.
package main

import (
	"os"

	"github.com/plexsphere/plexvpn/cmd/plexvpn/cmd"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
