package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Helioshell CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "helioshell",
		Short: "Helioshell - remote plugin loading runtime",
		Long: `Helioshell fetches plugin bundles from a provisioning API, executes
them in a shared sandboxed namespace, and serves queries over the
modules they expose.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewValidateCmd())

	return cmd
}
