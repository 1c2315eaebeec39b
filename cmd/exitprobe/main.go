// Package main provides the entry point for the exitprobe CLI.
//
// Exitprobe runs measurement commands over Tor circuits through the
// torsocks wrapper and correlates each command's outbound connections
// with the circuit that carried them.
//
// Usage:
//
//	exitprobe run --circuit <id> -- <command> [args...]
//	exitprobe run --circuits <file>
//
// See --help for all available options.
package main

// main is the entry point for exitprobe.
func main() {
	Execute()
}
