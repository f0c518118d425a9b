package cmd

import (
	"fmt"
	"net/http"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexvpn/internal/controlapi"
	"github.com/plexsphere/plexvpn/internal/firewall"
)

var firewallCmd = &cobra.Command{
	Use:   "firewall",
	Short: "Manage exemptions from the blocking firewall policy",
}

var allowEndpointRootOnly bool

var allowEndpointCmd = &cobra.Command{
	Use:   "allow-endpoint [ip:port [tcp|udp]]",
	Short: "Keep one endpoint reachable while traffic is blocked",
	Long:  "Keep one endpoint reachable while traffic is blocked. Without arguments the exemption is removed.",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runAllowEndpoint,
}

var allowIPCmd = &cobra.Command{
	Use:   "allow-ip <ip...>",
	Short: "Allow addresses while disconnected and blocking",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAllowIP,
}

func init() {
	allowEndpointCmd.Flags().BoolVar(&allowEndpointRootOnly, "root-only", false, "limit the exemption to processes running as root")
	firewallCmd.AddCommand(allowEndpointCmd, allowIPCmd)
	rootCmd.AddCommand(firewallCmd)
}

func runAllowEndpoint(cmd *cobra.Command, args []string) error {
	var req controlapi.AllowedEndpointRequest
	if len(args) > 0 {
		req.Address = args[0]
		if len(args) > 1 {
			req.Protocol = args[1]
		}
		if _, err := firewall.ParseEndpoint(req.Address, req.Protocol); err != nil {
			return fmt.Errorf("plexvpn firewall allow-endpoint: %w", err)
		}
		req.RootOnly = allowEndpointRootOnly
	}
	if _, err := socketMutate(http.MethodPut, "/v1/firewall/allowed-endpoint", req); err != nil {
		return fmt.Errorf("plexvpn firewall allow-endpoint: %w", err)
	}
	if req.Address == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "allowed endpoint: none")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "allowed endpoint: %s\n", req.Address)
	return nil
}

func runAllowIP(cmd *cobra.Command, args []string) error {
	for _, a := range args {
		if _, err := netip.ParseAddr(a); err != nil {
			return fmt.Errorf("plexvpn firewall allow-ip: invalid address %q", a)
		}
	}
	if _, err := socketMutate(http.MethodPost, "/v1/firewall/allowed-ips", controlapi.AllowedIPsRequest{IPs: args}); err != nil {
		return fmt.Errorf("plexvpn firewall allow-ip: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "allowed addresses: %s\n", listOrNone(args))
	return nil
}
