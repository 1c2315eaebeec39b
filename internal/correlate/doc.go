// Package correlate provides the channel between probe runners and the
// stream correlator.
//
// Runners publish one Event per source-port disclosure they observe in a
// probe command's output. An external correlator consumes the events and
// matches them against the streams it sees on the Tor control connection.
// The queue is unbounded so that a slow correlator can never back-pressure
// a runner in the middle of reading process output.
package correlate
