// Package torsocks runs external commands under the torsocks wrapper and
// attributes their outbound connections to Tor circuits.
//
// A Runner owns one command invocation at a time: it wraps the argument
// vector with torsocks, points the wrapper at a per-invocation
// configuration file through the child's environment, and reads the
// merged stdout/stderr stream line by line. At verbosity level 5,
// torsocks reports every redirected connection as
//
//	Connection on fd <N> originating from <host>:<port>
//
// Each such disclosure is published to the correlation queue, paired with
// the Runner's circuit ID, before the raw line is handed to the caller's
// line callback. A wall-clock timeout bounds every invocation; on expiry
// the process group is killed and the partial output is returned.
//
// Configuration reaches the child only through its own environment slice,
// so concurrent Runners in one process never interfere.
package torsocks
