package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig tests default values.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	if cfg.ProxyAddress != DefaultProxyAddress {
		t.Errorf("expected %q, got %q", DefaultProxyAddress, cfg.ProxyAddress)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("expected %v, got %v", DefaultTimeout, cfg.Timeout)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("expected %d, got %d", DefaultBatchSize, cfg.BatchSize)
	}
	if cfg.TorStartupTimeout != DefaultTorStartupTimeout {
		t.Errorf("expected %v, got %v", DefaultTorStartupTimeout, cfg.TorStartupTimeout)
	}
}

// TestConfigValidate tests validation rules.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := NewConfig()
		cfg.CircuitID = "C1"
		cfg.Command = []string{"curl", "-s", "https://example.com/"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid single command", mutate: func(*Config) {}},
		{
			name:    "no command and no circuits file",
			mutate:  func(c *Config) { c.Command = nil },
			wantErr: ErrNoCommand,
		},
		{
			name:    "command without circuit",
			mutate:  func(c *Config) { c.CircuitID = "" },
			wantErr: ErrNoCircuitID,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Timeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Timeout = -time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantErr: ErrInvalidBatchSize,
		},
		{
			name: "conflicting report formats",
			mutate: func(c *Config) {
				c.JSONReport = true
				c.MarkdownReport = true
			},
			wantErr: ErrConflictingReportFormats,
		},
		{
			name: "circuits file instead of command",
			mutate: func(c *Config) {
				c.Command = nil
				c.CircuitID = ""
				c.CircuitsFile = "circuits.yaml"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestXDGDirs tests that the XDG paths carry the app name.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if filepath.Base(XDGDataDir()) != AppName {
		t.Errorf("expected data dir ending in %q, got %q", AppName, XDGDataDir())
	}
	if filepath.Base(XDGConfigDir()) != AppName {
		t.Errorf("expected config dir ending in %q, got %q", AppName, XDGConfigDir())
	}
}

// TestLoadCircuitsFile tests circuits file parsing and validation.
func TestLoadCircuitsFile(t *testing.T) {
	t.Parallel()

	writeFile := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "circuits.yaml")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write circuits file: %v", err)
		}
		return path
	}

	t.Run("valid file with default command", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `
default_command: ["curl", "-s", "https://check.torproject.org/"]
circuits:
  - id: guard-exit-1
    socks: 127.0.0.1:9050
  - id: guard-exit-2
    socks: 127.0.0.1:9052
    command: ["dig", "+short", "example.com"]
`)

		f, err := LoadCircuitsFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.Circuits) != 2 {
			t.Fatalf("expected 2 circuits, got %d", len(f.Circuits))
		}

		first := f.CommandFor(f.Circuits[0])
		if len(first) != 3 || first[0] != "curl" {
			t.Errorf("expected default command for first circuit, got %v", first)
		}
		second := f.CommandFor(f.Circuits[1])
		if len(second) != 3 || second[0] != "dig" {
			t.Errorf("expected override command for second circuit, got %v", second)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadCircuitsFile(filepath.Join(t.TempDir(), "absent.yaml"))
		if !errors.Is(err, ErrCircuitsNotFound) {
			t.Errorf("expected ErrCircuitsNotFound, got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "circuits: [unclosed")
		if _, err := LoadCircuitsFile(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("entry without id", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `
circuits:
  - socks: 127.0.0.1:9050
    command: ["true"]
`)
		if _, err := LoadCircuitsFile(path); err == nil {
			t.Error("expected validation error for missing id")
		}
	})

	t.Run("entry without socks", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `
circuits:
  - id: C1
    command: ["true"]
`)
		if _, err := LoadCircuitsFile(path); err == nil {
			t.Error("expected validation error for missing socks address")
		}
	})

	t.Run("entry without any command", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `
circuits:
  - id: C1
    socks: 127.0.0.1:9050
`)
		if _, err := LoadCircuitsFile(path); err == nil {
			t.Error("expected validation error for missing command")
		}
	})

	t.Run("empty circuits list", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `circuits: []`)
		if _, err := LoadCircuitsFile(path); err == nil {
			t.Error("expected error for empty circuits list")
		}
	})
}
