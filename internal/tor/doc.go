// Package tor provides SOCKS5 connectivity to a Tor daemon for probe
// traffic.
//
// The package covers two concerns: dialing through an existing SOCKS
// listener with per-circuit stream isolation, and optionally launching an
// embedded Tor daemon via tornago when no external daemon is available.
//
// Stream isolation uses Tor's IsolateSOCKSAuth behavior: every circuit ID
// is mapped to a distinct SOCKS username/password pair, so connections
// made on behalf of different circuits never share a Tor circuit even when
// they target the same destination.
package tor
