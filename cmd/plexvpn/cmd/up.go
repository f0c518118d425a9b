package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexvpn/internal/daemon"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the plexvpn daemon",
	Long: "Start the plexvpn daemon. It applies the firewall policy for the\n" +
		"disconnected state, serves the control socket and manages the tunnel\n" +
		"until it receives SIGTERM or SIGINT.",
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)
}

// loadConfig parses the config file and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*daemon.Config, error) {
	cfg, err := daemon.ParseConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("socket") {
		cfg.ControlAPI.SocketPath = socketPath
	}
	return cfg, nil
}

func runUp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("plexvpn up: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting plexvpn",
		"version", buildVersion,
		"interface", cfg.WireGuard.InterfaceName,
		"userspace", cfg.WireGuard.Userspace,
	)

	store, err := daemon.OpenSettingsStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("plexvpn up: %w", err)
	}

	privateKey, err := daemon.LoadPrivateKey(cfg.Peer, cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("plexvpn up: %w", err)
	}

	comps, err := daemon.NewComponents(cfg, privateKey, logger)
	if err != nil {
		return fmt.Errorf("plexvpn up: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	d := daemon.New(*cfg, comps, store, logger)
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("plexvpn up: %w", err)
	}
	return nil
}
