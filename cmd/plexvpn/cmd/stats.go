package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexvpn/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tunnel statistics",
	Long:  "Connect to the local daemon via Unix socket and display the latest tunnel and daemon statistics.",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	var snap metrics.Snapshot
	if err := socketDo(socketPath, http.MethodGet, "/v1/stats", nil, &snap); err != nil {
		return fmt.Errorf("plexvpn stats: %w", err)
	}

	w := cmd.OutOrStdout()
	if snap.CollectedAt.IsZero() {
		fmt.Fprintln(w, "No statistics collected yet")
		return nil
	}
	fmt.Fprintf(w, "Collected: %s\n", snap.CollectedAt.Format(time.RFC3339))
	if len(snap.Tunnel) == 0 {
		fmt.Fprintln(w, "Tunnel:    down")
	}
	for _, p := range snap.Tunnel {
		fmt.Fprintf(w, "Peer:      %s\n", p.PublicKey)
		if p.LastHandshake.IsZero() {
			fmt.Fprintln(w, "  Handshake: never")
		} else {
			stale := ""
			if p.HandshakeStale {
				stale = " (stale)"
			}
			fmt.Fprintf(w, "  Handshake: %s%s\n", p.LastHandshake.Format(time.RFC3339), stale)
		}
		fmt.Fprintf(w, "  Received:  %d bytes\n", p.RxBytes)
		fmt.Fprintf(w, "  Sent:      %d bytes\n", p.TxBytes)
	}
	if snap.System != nil {
		fmt.Fprintf(w, "Uptime:    %s\n", snap.System.Uptime.Truncate(time.Second))
		fmt.Fprintf(w, "Memory:    %d bytes heap\n", snap.System.HeapAllocBytes)
	}
	return nil
}
