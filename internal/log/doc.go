// Package log provides the slog handler used across exitprobe.
//
// The handler wraps any slog.Handler and masks attribute values that
// would deanonymize a measurement if they leaked into log output: SOCKS
// isolation credentials, control-port secrets, and similar. Wrapping a
// handler instead of defining a logger keeps the package compatible with
// every slog-based dependency.
package log
