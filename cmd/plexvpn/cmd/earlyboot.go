package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexvpn/internal/daemon"
)

var earlyBootCmd = &cobra.Command{
	Use:   "initialize-early-boot-firewall",
	Short: "Block all traffic until the daemon starts",
	Long: "Apply the blocking firewall policy. Run this before the network comes up\n" +
		"so nothing leaks before the daemon takes over.",
	Args: cobra.NoArgs,
	RunE: runEarlyBoot,
}

func init() {
	rootCmd.AddCommand(earlyBootCmd)
}

func runEarlyBoot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("plexvpn initialize-early-boot-firewall: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	store, err := daemon.OpenSettingsStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("plexvpn initialize-early-boot-firewall: %w", err)
	}
	fw, err := daemon.NewFirewall(cfg, logger)
	if err != nil {
		return fmt.Errorf("plexvpn initialize-early-boot-firewall: %w", err)
	}
	if err := daemon.InitializeEarlyBootFirewall(fw, store, logger); err != nil {
		return fmt.Errorf("plexvpn initialize-early-boot-firewall: %w", err)
	}
	return nil
}
