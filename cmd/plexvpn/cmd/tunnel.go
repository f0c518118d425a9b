package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the tunnel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := socketMutate(http.MethodPost, "/v1/connect", nil)
		if err != nil {
			return fmt.Errorf("plexvpn connect: %w", err)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the tunnel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := socketMutate(http.MethodPost, "/v1/disconnect", nil)
		if err != nil {
			return fmt.Errorf("plexvpn disconnect: %w", err)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}
