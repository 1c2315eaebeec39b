package tor

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint identifies a local SOCKS listener as a host and port pair.
// The zero value is not a valid endpoint; use ParseEndpoint or construct
// both fields explicitly.
type Endpoint struct {
	// Host is the listener address, normally a loopback address.
	Host string

	// Port is the SOCKS port, 1-65535.
	Port int
}

// Addr returns the endpoint in "host:port" form suitable for dialing.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the same representation as Addr.
func (e Endpoint) String() string {
	return e.Addr()
}

// Valid reports whether the endpoint has a host and an in-range port.
func (e Endpoint) Valid() bool {
	return e.Host != "" && e.Port >= 1 && e.Port <= 65535
}

// ParseEndpoint parses "host:port" into an Endpoint, validating that the
// host is non-empty and the port is in range.
func ParseEndpoint(address string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || host == "" || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	return Endpoint{Host: host, Port: port}, nil
}
