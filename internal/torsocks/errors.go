package torsocks

import "errors"

// Runner errors.
var (
	// ErrEmptyCommand is returned by Execute when the argument vector
	// is empty.
	ErrEmptyCommand = errors.New("empty command: at least one argument is required")
)
