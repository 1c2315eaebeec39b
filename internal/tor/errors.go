package tor

import "errors"

// Connectivity errors returned when the configured SOCKS listener cannot
// be used. Callers classify with errors.Is so that, for example, a
// timeout can be retried while a wrong-type proxy fails fast.
var (
	// ErrProxyNotSOCKS is returned when the proxy address responds but
	// does not speak the SOCKS5 protocol.
	ErrProxyNotSOCKS = errors.New("proxy is not a SOCKS5 listener")

	// ErrProxyCannotConnect is returned when no TCP connection to the
	// proxy address can be established. Tor is likely not running.
	ErrProxyCannotConnect = errors.New("cannot connect to SOCKS proxy")

	// ErrProxyTimeout is returned when the proxy check times out.
	ErrProxyTimeout = errors.New("timeout connecting to SOCKS proxy")

	// ErrInvalidProxyAddress is returned when a proxy address is not in
	// "host:port" form with an in-range port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port")
)

// ProxyStatus is the result of checking the SOCKS listener.
type ProxyStatus int

const (
	// ProxyStatusOK indicates a working SOCKS5 listener.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the address responded but is not
	// a SOCKS5 proxy.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no TCP connection could be made.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the check timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns the error corresponding to this status, or nil if OK.
func (s ProxyStatus) Err() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
