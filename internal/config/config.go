package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. The timeouts mirror the behavior of the
// torsocks wrapper and the Tor network rather than clearnet expectations.
const (
	// DefaultProxyAddress is the standard Tor SOCKS5 listener. The
	// loopback IP is used instead of localhost to avoid DNS resolution
	// and IPv6 surprises.
	DefaultProxyAddress = "127.0.0.1:9050"

	// DefaultTimeout is the wall-clock budget for one probe command.
	// Probe commands are deliberately short-lived: a fetch that has not
	// finished in ten seconds tells the measurement nothing more.
	DefaultTimeout = 10 * time.Second

	// DefaultBatchSize is the number of probe commands run concurrently
	// in batch mode. Each probe holds a Tor circuit, a limited resource
	// on the local daemon.
	DefaultBatchSize = 4

	// DefaultTorStartupTimeout bounds the embedded Tor daemon's
	// bootstrap when no external proxy is configured.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is used for XDG directory paths.
	AppName = "exitprobe"
)

// Config holds all options for a probe session. It is built from CLI
// flags, validated once, and then passed through by explicit argument.
type Config struct {
	// ProxyAddress is the SOCKS5 listener in "host:port" form. Ignored
	// when UseEmbeddedTor is set.
	ProxyAddress string

	// UseEmbeddedTor launches a Tor daemon via tornago instead of
	// expecting an external one at ProxyAddress.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds the embedded daemon's bootstrap.
	TorStartupTimeout time.Duration

	// Timeout is the wall-clock budget per probe command.
	Timeout time.Duration

	// BatchSize is the number of concurrent probe commands.
	BatchSize int

	// CircuitID is the circuit for a single-command invocation.
	CircuitID string

	// Command is the argument vector for a single-command invocation,
	// without the torsocks wrapper prefix.
	Command []string

	// CircuitsFile is the path to a YAML file describing per-circuit
	// probes for batch mode. Empty for single-command mode.
	CircuitsFile string

	// Circuits holds the parsed circuits file.
	Circuits *File

	// WrapperPath overrides the torsocks executable. Empty means
	// resolve "torsocks" via PATH.
	WrapperPath string

	// Verbose switches logging from warnings-only to debug.
	Verbose bool

	// JSONReport and MarkdownReport select the report format; both
	// false means the human-readable simple report. Mutually exclusive.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory holding the probe database. Empty
	// disables persistence.
	DBDir string

	// SaveToDB records runs and correlation events in the database.
	SaveToDB bool
}

// NewConfig creates a Config with defaults. Zero values are wrong for
// most fields here, so construction goes through this function.
func NewConfig() *Config {
	return &Config{
		ProxyAddress:      DefaultProxyAddress,
		Timeout:           DefaultTimeout,
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for exitprobe, the default
// location of the probe database.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for exitprobe.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration, returning the first problem found.
func (c *Config) Validate() error {
	if len(c.Command) == 0 && c.CircuitsFile == "" && (c.Circuits == nil || len(c.Circuits.Circuits) == 0) {
		return ErrNoCommand
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if len(c.Command) > 0 && c.CircuitID == "" {
		return ErrNoCircuitID
	}
	return nil
}
