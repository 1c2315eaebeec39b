// Package probe orchestrates measurement sessions.
//
// A Session takes a set of targets, each pairing a circuit with a SOCKS
// listener and a probe command, runs them with bounded concurrency, and
// aggregates the per-run results and correlation events into a
// model.ProbeReport. When a database is attached, every run is persisted
// as it completes.
package probe
