// Package router scopes in-process network calls to a circuit-bound
// SOCKS dialer.
//
// It is the in-process counterpart of running a command under torsocks:
// instead of spawning a subprocess, the caller hands over a function that
// performs network work, and the router supplies it with a dialer routed
// through the SOCKS listener and isolated to one circuit. Every
// successful dial is attributed to that circuit on the correlation queue,
// using the connection's ephemeral local port.
//
// The routing is injected, not installed: there is no process-wide
// override of any socket machinery, so wrapped functions for different
// circuits may run concurrently and nothing has to be restored afterward.
package router
