// Package main provides the entry point for the exitprobe CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for exitprobe.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exitprobe",
		Short: "Run measurement commands over Tor circuits and correlate their connections",
		Long: `Exitprobe runs external commands through the torsocks wrapper so their
traffic is routed over Tor, and correlates each outbound connection with
the circuit that carried it by parsing the wrapper's connection
disclosures.

By default, exitprobe expects an external Tor SOCKS proxy at
127.0.0.1:9050. Use --embedded-tor to launch a Tor daemon instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
