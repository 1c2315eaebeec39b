package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrCircuitsNotFound is returned when the circuits file does not exist.
var ErrCircuitsNotFound = errors.New("circuits file not found")

// File is the parsed circuits file. Each entry names a circuit, the
// SOCKS listener to route through, and optionally a per-circuit command
// overriding the session default.
//
// Example:
//
//	default_command: ["curl", "-s", "https://check.torproject.org/"]
//	circuits:
//	  - id: guard-exit-1
//	    socks: 127.0.0.1:9050
//	  - id: guard-exit-2
//	    socks: 127.0.0.1:9052
//	    command: ["dig", "+short", "example.com"]
type File struct {
	// DefaultCommand runs for circuits that do not override it.
	DefaultCommand []string `yaml:"default_command"`

	// Circuits lists the probes to run.
	Circuits []Circuit `yaml:"circuits"`
}

// Circuit is one entry of the circuits file.
type Circuit struct {
	// ID is the opaque circuit identifier used as the correlation key.
	ID string `yaml:"id"`

	// Socks is the SOCKS listener for this circuit in "host:port" form.
	Socks string `yaml:"socks"`

	// Command overrides the file's default command for this circuit.
	Command []string `yaml:"command"`
}

// LoadCircuitsFile parses a YAML circuits file. Entries must carry an ID
// and a SOCKS address, and every circuit must end up with a command.
func LoadCircuitsFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCircuitsNotFound, path)
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse circuits file %s: %w", path, err)
	}

	if len(f.Circuits) == 0 {
		return nil, fmt.Errorf("circuits file %s lists no circuits", path)
	}
	for i, c := range f.Circuits {
		if c.ID == "" {
			return nil, fmt.Errorf("circuits file %s: entry %d has no id", path, i)
		}
		if c.Socks == "" {
			return nil, fmt.Errorf("circuits file %s: circuit %q has no socks address", path, c.ID)
		}
		if len(c.Command) == 0 && len(f.DefaultCommand) == 0 {
			return nil, fmt.Errorf("circuits file %s: circuit %q has no command and no default_command is set", path, c.ID)
		}
	}

	return &f, nil
}

// CommandFor returns the command to run for the given circuit entry,
// falling back to the file default.
func (f *File) CommandFor(c Circuit) []string {
	if len(c.Command) > 0 {
		return c.Command
	}
	return f.DefaultCommand
}
