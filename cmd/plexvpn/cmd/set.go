package cmd

import (
	"fmt"
	"net/http"
	"net/netip"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexvpn/internal/controlapi"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a user setting",
	Long:  "Change a user setting. Settings are stored by the daemon and survive restarts.",
}

var splitTunnelCmd = &cobra.Command{
	Use:   "split-tunnel",
	Short: "Manage applications excluded from the tunnel",
}

var splitTunnelSetCmd = &cobra.Command{
	Use:   "set [path...]",
	Short: "Replace the list of excluded applications",
	Long:  "Replace the list of excluded applications. Without arguments the list is cleared.",
	RunE:  runSplitTunnelSet,
}

var customResolverCmd = &cobra.Command{
	Use:   "custom-resolver <enable|disable>",
	Short: "Enable or disable the local forwarding resolver",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomResolver,
}

func init() {
	setCmd.AddCommand(
		newToggleCmd("allow-lan", "Allow traffic to the local network outside the tunnel", "/v1/settings/allow-lan"),
		newToggleCmd("block-when-disconnected", "Block all traffic while disconnected", "/v1/settings/block-when-disconnected"),
		newToggleCmd("auto-connect", "Connect when the daemon starts", "/v1/settings/auto-connect"),
		&cobra.Command{
			Use:   "dns [server...]",
			Short: "Use custom DNS servers while connected",
			Long:  "Use custom DNS servers while connected. Without arguments the tunnel's own servers are used.",
			RunE:  runSetDNS,
		},
	)
	splitTunnelCmd.AddCommand(splitTunnelSetCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(splitTunnelCmd)
	rootCmd.AddCommand(customResolverCmd)
}

func newToggleCmd(name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <on|off>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseToggle(args[0])
			if err != nil {
				return fmt.Errorf("plexvpn set %s: %w", name, err)
			}
			if _, err := socketMutate(http.MethodPut, path, controlapi.ToggleRequest{Enabled: enabled}); err != nil {
				return fmt.Errorf("plexvpn set %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, onOff(enabled))
			return nil
		},
	}
}

func parseToggle(s string) (bool, error) {
	switch s {
	case "on", "true", "yes", "enable":
		return true, nil
	case "off", "false", "no", "disable":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q (want on or off)", s)
	}
}

func runSetDNS(cmd *cobra.Command, args []string) error {
	for _, a := range args {
		if _, err := netip.ParseAddr(a); err != nil {
			return fmt.Errorf("plexvpn set dns: invalid address %q", a)
		}
	}
	servers := append([]string{}, args...)
	if _, err := socketMutate(http.MethodPut, "/v1/settings/dns", controlapi.DNSRequest{Servers: servers}); err != nil {
		return fmt.Errorf("plexvpn set dns: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "dns: %s\n", listOrNone(servers))
	return nil
}

func runSplitTunnelSet(cmd *cobra.Command, args []string) error {
	paths := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return fmt.Errorf("plexvpn split-tunnel set: %w", err)
		}
		paths = append(paths, abs)
	}
	if _, err := socketMutate(http.MethodPut, "/v1/settings/excluded-apps", controlapi.ExcludedAppsRequest{Paths: paths}); err != nil {
		return fmt.Errorf("plexvpn split-tunnel set: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "excluded applications: %s\n", listOrNone(paths))
	return nil
}

func runCustomResolver(cmd *cobra.Command, args []string) error {
	enabled, err := parseToggle(args[0])
	if err != nil {
		return fmt.Errorf("plexvpn custom-resolver: %w", err)
	}
	if _, err := socketMutate(http.MethodPut, "/v1/settings/custom-resolver", controlapi.ToggleRequest{Enabled: enabled}); err != nil {
		return fmt.Errorf("plexvpn custom-resolver: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "custom resolver: %s\n", onOff(enabled))
	return nil
}
