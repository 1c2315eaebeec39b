// Package config holds exitprobe's configuration: defaults, validation,
// and the YAML circuits file that maps circuit IDs to probe commands.
//
// Configuration is populated from CLI flags and passed through the
// application by value; nothing in this package is global state.
package config
