package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexvpn/internal/controlapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tunnel status",
	Long:  "Connect to the local daemon via Unix socket and display the tunnel state.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show user settings",
	Long:  "Connect to the local daemon via Unix socket and display the user settings.",
	Args:  cobra.NoArgs,
	RunE:  runSettings,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	var st controlapi.Status
	if err := socketDo(socketPath, http.MethodGet, "/v1/status", nil, &st); err != nil {
		return fmt.Errorf("plexvpn status: %w", err)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func printStatus(w io.Writer, st controlapi.Status) {
	fmt.Fprintf(w, "State:     %s\n", st.State)
	if !st.Since.IsZero() {
		fmt.Fprintf(w, "Since:     %s\n", st.Since.Format(time.RFC3339))
	}
	if st.Endpoint != "" {
		fmt.Fprintf(w, "Endpoint:  %s\n", st.Endpoint)
	}
	if st.Interface != "" {
		fmt.Fprintf(w, "Interface: %s\n", st.Interface)
	}
	if len(st.Addresses) > 0 {
		fmt.Fprintf(w, "Addresses: %s\n", strings.Join(st.Addresses, ", "))
	}
	if st.AfterDisconnect != "" {
		fmt.Fprintf(w, "Then:      %s\n", st.AfterDisconnect)
	}
	if st.ErrorCause != "" {
		fmt.Fprintf(w, "Cause:     %s\n", st.ErrorCause)
		if st.Blocking {
			fmt.Fprintln(w, "Traffic:   blocked")
		} else {
			fmt.Fprintf(w, "Traffic:   NOT blocked (%s)\n", st.BlockFailure)
		}
	}
}

func runSettings(cmd *cobra.Command, _ []string) error {
	var s controlapi.Settings
	if err := socketDo(socketPath, http.MethodGet, "/v1/settings", nil, &s); err != nil {
		return fmt.Errorf("plexvpn settings: %w", err)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Allow LAN:                %s\n", onOff(s.AllowLAN))
	fmt.Fprintf(w, "Block when disconnected:  %s\n", onOff(s.BlockWhenDisconnected))
	fmt.Fprintf(w, "Custom resolver:          %s\n", onOff(s.CustomResolver))
	fmt.Fprintf(w, "Auto-connect:             %s\n", onOff(s.AutoConnect))
	fmt.Fprintf(w, "DNS servers:              %s\n", listOrNone(s.DNSServers))
	fmt.Fprintf(w, "Excluded applications:    %s\n", listOrNone(s.ExcludedApps))
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
