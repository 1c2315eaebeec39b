package config

import "errors"

// Validation errors returned by Config.Validate. Sentinel errors keep
// errors.Is usable at the CLI boundary while carrying readable messages.
var (
	// ErrNoCommand is returned when neither a probe command nor a
	// circuits file is configured.
	ErrNoCommand = errors.New("no probe command: pass a command or use --circuits")

	// ErrNoCircuitID is returned when a single command is given without
	// the circuit to attribute its connections to.
	ErrNoCircuitID = errors.New("no circuit ID: single-command mode requires --circuit")

	// ErrInvalidTimeout is returned when the per-command timeout is not
	// positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
