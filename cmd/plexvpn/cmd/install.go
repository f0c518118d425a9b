package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexvpn/internal/packaging"
)

var (
	installEarlyBoot bool
	installStart     bool
	installPeer      packaging.PeerTemplate
	purge            bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install plexvpn as a systemd service",
	Args:  cobra.NoArgs,
	RunE:  runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the plexvpn systemd services",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

func init() {
	installCmd.Flags().BoolVar(&installEarlyBoot, "early-boot-blocking", false, "block traffic during boot until the daemon starts")
	installCmd.Flags().BoolVar(&installStart, "now", false, "enable and start the daemon after installing")
	installCmd.Flags().StringVar(&installPeer.Endpoint, "endpoint", "", "peer endpoint (ip:port) for a new config")
	installCmd.Flags().StringVar(&installPeer.PublicKey, "public-key", "", "peer public key for a new config")
	installCmd.Flags().StringVar(&installPeer.Address, "address", "", "tunnel address for a new config")
	installCmd.Flags().StringVar(&installPeer.DNS, "dns", "", "tunnel DNS server for a new config")
	uninstallCmd.Flags().BoolVar(&purge, "purge", false, "also remove data and config directories")
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := packaging.InstallConfig{
		EarlyBoot: installEarlyBoot,
		Start:     installStart,
		Peer:      installPeer,
	}
	installer := packaging.NewInstaller(cfg, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)

	if err := installer.Install(); err != nil {
		return fmt.Errorf("plexvpn install: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "plexvpn installed successfully")
	return nil
}

func runUninstall(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	installer := packaging.NewInstaller(packaging.InstallConfig{}, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)
	if err := installer.Uninstall(purge); err != nil {
		return fmt.Errorf("plexvpn uninstall: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "plexvpn uninstalled successfully")
	return nil
}
