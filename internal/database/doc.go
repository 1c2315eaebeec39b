// Package database persists probe runs and correlation events in SQLite.
//
// Persistence lets the external stream correlator work offline: events
// recorded during a measurement session can be matched against control
// port stream logs after the fact, and repeated measurements of the same
// circuits can be compared across sessions.
package database
