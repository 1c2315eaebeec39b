package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/net/proxy"

	"github.com/nao1215/exitprobe/internal/correlate"
	"github.com/nao1215/exitprobe/internal/tor"
)

// Func is a network task to be routed through a circuit. It must perform
// all outbound connections through the supplied dialer; connections made
// any other way bypass the proxy and the correlation machinery.
type Func func(ctx context.Context, dialer proxy.Dialer) error

// NegotiationError wraps a failure to establish a connection through the
// SOCKS listener. It covers the handshake with the proxy as well as the
// proxy's refusal to reach the target; both mean the circuit declined
// the stream, which is an expected outcome during exit measurements.
type NegotiationError struct {
	// Addr is the target address of the failed dial.
	Addr string

	// Err is the underlying dialer error.
	Err error
}

// Error implements the error interface.
func (e *NegotiationError) Error() string {
	return fmt.Sprintf("socks negotiation for %s failed: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying dialer error.
func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// Option configures a wrapped closure.
type Option func(*wrapper)

// WithLogger sets the logger used for negotiation failures.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *wrapper) {
		w.logger = logger
	}
}

// WithQueue sets the correlation queue that receives one event per
// successful dial. Without a queue, connections are routed but not
// attributed.
func WithQueue(queue *correlate.Queue) Option {
	return func(w *wrapper) {
		w.queue = queue
	}
}

// wrapper holds the per-closure routing state.
type wrapper struct {
	fn        Func
	endpoint  tor.Endpoint
	circuitID string
	queue     *correlate.Queue
	logger    *slog.Logger
}

// Wrap binds fn to a circuit and returns a closure that runs it with a
// SOCKS dialer for endpoint, stream-isolated to circuitID.
//
// A NegotiationError from the dial path is logged and swallowed: a
// declined stream is a measurement result, not a fault. Every other
// error from fn propagates unchanged. The closure owns no shared state,
// so it may be invoked concurrently with other wrapped closures.
func Wrap(fn Func, endpoint tor.Endpoint, circuitID string, opts ...Option) func(context.Context) error {
	w := &wrapper{
		fn:        fn,
		endpoint:  endpoint,
		circuitID: circuitID,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	return w.run
}

// run builds the circuit-bound dialer and invokes the wrapped function.
func (w *wrapper) run(ctx context.Context) error {
	client, err := tor.NewClient(w.endpoint, tor.WithIsolation(w.circuitID))
	if err != nil {
		return fmt.Errorf("failed to build circuit dialer: %w", err)
	}

	dialer := &correlatingDialer{
		base:      client,
		circuitID: w.circuitID,
		queue:     w.queue,
	}

	err = w.fn(ctx, dialer)

	var negErr *NegotiationError
	if errors.As(err, &negErr) {
		w.logger.Info("socks negotiation failed",
			"circuit", w.circuitID,
			"target", negErr.Addr,
			"error", negErr.Err,
		)
		return nil
	}
	return err
}

// correlatingDialer attributes every successful dial to a circuit.
//
// The event is published on the queue directly, never through the
// proxied connection, so event emission can never itself be routed.
type correlatingDialer struct {
	base      *tor.Client
	circuitID string
	queue     *correlate.Queue
}

// Dial implements proxy.Dialer.
func (d *correlatingDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

// DialContext implements proxy.ContextDialer.
func (d *correlatingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.base.DialContext(ctx, network, addr)
	if err != nil {
		// Classify dial-path failures as negotiation failures so the
		// wrapper treats them as declined streams. Errors raised by
		// the wrapped function itself keep their type and propagate.
		return nil, &NegotiationError{Addr: addr, Err: err}
	}

	if d.queue != nil {
		if tcpAddr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
			d.queue.Put(d.circuitID, tcpAddr.IP.String(), tcpAddr.Port)
		}
	}
	return conn, nil
}
