package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/exitprobe/internal/config"
	"github.com/nao1215/exitprobe/internal/tor"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the Tor SOCKS proxy is reachable",
		Long: `Check connects to the configured SOCKS proxy address and verifies it
speaks the SOCKS5 protocol. It does not build a circuit or send probe
traffic.

Examples:
  # Check the default proxy at 127.0.0.1:9050
  exitprobe check

  # Check a non-default listener
  exitprobe check --proxy 127.0.0.1:9150`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP("proxy", "p", config.DefaultProxyAddress,
		"Tor SOCKS proxy address to check")

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, _ []string) error {
	address, err := cmd.Flags().GetString("proxy")
	if err != nil {
		return err
	}

	endpoint, err := tor.ParseEndpoint(address)
	if err != nil {
		return fmt.Errorf("invalid proxy address %q: %w", address, err)
	}

	client, err := tor.NewClient(endpoint)
	if err != nil {
		return err
	}

	status := client.CheckConnection(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "SOCKS proxy %s: %s\n", endpoint.Addr(), status)
	return status.Err()
}
