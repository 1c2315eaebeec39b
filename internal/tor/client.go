package tor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 connectivity check. The check only
// verifies the listener speaks SOCKS5; it never builds a circuit, so a
// short timeout is enough.
const checkProxyTimeout = 2 * time.Second

// DefaultDialTimeout is the default timeout for dials through the proxy.
// Tor adds several relay hops, so this is more generous than a typical
// clearnet dial timeout.
const DefaultDialTimeout = 60 * time.Second

// Client dials TCP connections through a Tor SOCKS5 listener.
//
// When constructed with WithIsolation, the client authenticates to the
// SOCKS port with credentials derived from the circuit ID. Tor isolates
// streams carrying different SOCKS credentials onto different circuits
// (IsolateSOCKSAuth), which keeps probes for distinct circuits from
// sharing a path.
type Client struct {
	// endpoint is the SOCKS listener to dial through.
	endpoint Endpoint

	// dialer is the cached SOCKS5 dialer.
	dialer proxy.Dialer

	// circuitID is the isolation key, empty when isolation is disabled.
	circuitID string

	// timeout is the default dial timeout.
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialTimeout sets the default timeout for dials through the proxy.
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithIsolation derives per-circuit SOCKS credentials from circuitID so
// Tor places this client's streams on their own circuit. An empty
// circuitID disables isolation.
func WithIsolation(circuitID string) ClientOption {
	return func(c *Client) {
		c.circuitID = circuitID
	}
}

// NewClient creates a client for the given SOCKS listener.
// The endpoint is validated but not contacted; call CheckConnection to
// verify the listener is actually up.
func NewClient(endpoint Endpoint, opts ...ClientOption) (*Client, error) {
	if !endpoint.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, endpoint.Addr())
	}

	c := &Client{
		endpoint: endpoint,
		timeout:  DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer, err := proxy.SOCKS5("tcp", endpoint.Addr(), isolationAuth(c.circuitID), proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	c.dialer = dialer

	return c, nil
}

// isolationAuth maps a circuit ID to SOCKS credentials.
//
// The ID is hashed rather than used directly because SOCKS5 usernames and
// passwords are limited to 255 bytes and callers may use arbitrarily long
// opaque IDs. SHA3-256 keeps distinct IDs on distinct credentials.
func isolationAuth(circuitID string) *proxy.Auth {
	if circuitID == "" {
		return nil
	}
	sum := sha3.Sum256([]byte(circuitID))
	return &proxy.Auth{
		User:     hex.EncodeToString(sum[:16]),
		Password: hex.EncodeToString(sum[16:]),
	}
}

// Endpoint returns the configured SOCKS listener.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Dialer returns the underlying SOCKS5 dialer. The router wraps this to
// attribute dialed connections to circuits.
func (c *Client) Dialer() proxy.Dialer {
	return c.dialer
}

// Dial establishes a TCP connection through Tor to the given address.
func (c *Client) Dial(network, address string) (net.Conn, error) {
	return c.dialer.Dial(network, address)
}

// DialContext establishes a TCP connection through Tor with cancellation
// support. The SOCKS5 dialer itself has no context hook, so the dial runs
// on a goroutine; on cancellation the in-flight attempt may briefly
// outlive this call.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if result := <-resultCh; result.conn != nil {
				_ = result.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// SOCKS5 protocol constants for the connectivity check.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthUserPass = 0x02
	socks5AuthNoAccept = 0xFF
)

// CheckConnection verifies that the configured address is a live SOCKS5
// listener. It performs the version negotiation step of the protocol and
// inspects the selected authentication method; it does not open a stream.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.endpoint.Addr())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Offer both no-auth and username/password; Tor accepts either
	// depending on whether isolation credentials are in play.
	if _, err := conn.Write([]byte{socks5Version, 0x02, socks5AuthNone, socks5AuthUserPass}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}
