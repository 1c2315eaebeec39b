package tor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// EmbeddedTor manages an embedded Tor daemon via tornago so that probes
// can run without an externally managed Tor installation.
//
// Bootstrapping takes one to three minutes: the daemon has to fetch
// directory information and build its first circuits before the SOCKS
// listener is usable.
type EmbeddedTor struct {
	// process is the running Tor daemon, nil until Start succeeds.
	process *tornago.TorProcess

	// socksAddr is the daemon's SOCKS listener, set after startup.
	socksAddr string

	// startupTimeout bounds the bootstrap wait.
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates an embedded Tor manager. Call Start to launch
// the daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the Tor daemon and blocks until it bootstraps or the
// startup timeout expires. Ports are OS-assigned so multiple instances
// can coexist.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	// StartTorDaemon blocks through bootstrap; honor a cancellation that
	// arrived while it was running.
	select {
	case <-ctx.Done():
		_ = process.Stop()
		return ctx.Err()
	default:
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	return nil
}

// Stop shuts down the daemon. Safe to call repeatedly or before Start.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the daemon's SOCKS listener in "host:port" form, or
// an empty string if the daemon is not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// IsRunning reports whether the daemon is running.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// Endpoint returns the daemon's SOCKS listener as an Endpoint.
func (e *EmbeddedTor) Endpoint() (Endpoint, error) {
	if !e.IsRunning() {
		return Endpoint{}, errors.New("embedded Tor daemon is not running")
	}
	return ParseEndpoint(e.socksAddr)
}
