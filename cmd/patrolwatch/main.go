package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "patrolwatch",
		Short: "Patrol unit monitoring backend",
		Long: `patrolwatch simulates a fleet of field communication units, raises
alerts from their telemetry and serves the live state over HTTP and WebSocket.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON config file (defaults when empty)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the patrolwatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "patrolwatch %s\n", version)
		},
	}

	root.AddCommand(newServeCmd(), newRosterCmd(), versionCmd)
	return root
}
