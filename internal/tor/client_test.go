package tor

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// TestParseEndpoint tests endpoint parsing and validation.
func TestParseEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Endpoint
		wantErr bool
	}{
		{name: "valid loopback", input: "127.0.0.1:9050", want: Endpoint{Host: "127.0.0.1", Port: 9050}},
		{name: "valid hostname", input: "localhost:9150", want: Endpoint{Host: "localhost", Port: 9150}},
		{name: "missing port", input: "127.0.0.1", wantErr: true},
		{name: "empty host", input: ":9050", wantErr: true},
		{name: "port zero", input: "127.0.0.1:0", wantErr: true},
		{name: "port too large", input: "127.0.0.1:70000", wantErr: true},
		{name: "non-numeric port", input: "127.0.0.1:socks", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseEndpoint(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProxyAddress) {
					t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

// TestEndpointAddr tests the host:port rendering.
func TestEndpointAddr(t *testing.T) {
	t.Parallel()

	e := Endpoint{Host: "127.0.0.1", Port: 9050}
	if got := e.Addr(); got != "127.0.0.1:9050" {
		t.Errorf("expected 127.0.0.1:9050, got %q", got)
	}
	if !e.Valid() {
		t.Error("expected endpoint to be valid")
	}
	if (Endpoint{}).Valid() {
		t.Error("expected zero endpoint to be invalid")
	}
}

// TestIsolationAuth tests circuit-to-credential derivation.
func TestIsolationAuth(t *testing.T) {
	t.Parallel()

	t.Run("empty circuit disables isolation", func(t *testing.T) {
		t.Parallel()

		if isolationAuth("") != nil {
			t.Error("expected nil auth for empty circuit ID")
		}
	})

	t.Run("deterministic per circuit", func(t *testing.T) {
		t.Parallel()

		a := isolationAuth("circuit-41")
		b := isolationAuth("circuit-41")
		if a.User != b.User || a.Password != b.Password {
			t.Error("expected identical credentials for the same circuit ID")
		}
	})

	t.Run("distinct circuits get distinct credentials", func(t *testing.T) {
		t.Parallel()

		a := isolationAuth("circuit-41")
		b := isolationAuth("circuit-42")
		if a.User == b.User {
			t.Error("expected different usernames for different circuit IDs")
		}
	})

	t.Run("credentials fit SOCKS5 limits", func(t *testing.T) {
		t.Parallel()

		long := make([]byte, 4096)
		for i := range long {
			long[i] = 'x'
		}
		auth := isolationAuth(string(long))
		if len(auth.User) > 255 || len(auth.Password) > 255 {
			t.Errorf("credentials exceed SOCKS5 255-byte limit: user=%d password=%d",
				len(auth.User), len(auth.Password))
		}
	})
}

// TestNewClient tests client construction.
func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid endpoint", func(t *testing.T) {
		t.Parallel()

		if _, err := NewClient(Endpoint{}); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})

	t.Run("creates dialer without contacting the proxy", func(t *testing.T) {
		t.Parallel()

		// Port 9050 need not be listening; construction is offline.
		c, err := NewClient(Endpoint{Host: "127.0.0.1", Port: 9050}, WithIsolation("C1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Dialer() == nil {
			t.Error("expected non-nil dialer")
		}
		if c.Endpoint().Port != 9050 {
			t.Errorf("expected endpoint port 9050, got %d", c.Endpoint().Port)
		}
	})
}

// fakeSOCKSListener accepts one connection and answers the SOCKS5
// version negotiation with the given method byte.
func fakeSOCKSListener(t *testing.T, version, method byte) Endpoint {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Read the client greeting: version, method count, methods.
		header := make([]byte, 2)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		methods := make([]byte, int(header[1]))
		if _, err := io.ReadFull(conn, methods); err != nil {
			return
		}
		_, _ = conn.Write([]byte{version, method})
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

// TestCheckConnection tests the SOCKS5 connectivity check against fake
// listeners.
func TestCheckConnection(t *testing.T) {
	t.Parallel()

	t.Run("accepts a SOCKS5 no-auth listener", func(t *testing.T) {
		t.Parallel()

		endpoint := fakeSOCKSListener(t, 0x05, 0x00)
		c, err := NewClient(endpoint)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if status := c.CheckConnection(context.Background()); status != ProxyStatusOK {
			t.Errorf("expected ProxyStatusOK, got %s", status)
		}
	})

	t.Run("rejects a non-SOCKS listener", func(t *testing.T) {
		t.Parallel()

		endpoint := fakeSOCKSListener(t, 0x04, 0x00)
		c, err := NewClient(endpoint)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if status := c.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %s", status)
		}
	})

	t.Run("rejects a listener demanding unsupported auth", func(t *testing.T) {
		t.Parallel()

		endpoint := fakeSOCKSListener(t, 0x05, 0xFF)
		c, err := NewClient(endpoint)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if status := c.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %s", status)
		}
	})

	t.Run("reports unreachable listener", func(t *testing.T) {
		t.Parallel()

		// Reserve a port and close it so nothing is listening.
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		_ = ln.Close()

		c, err := NewClient(Endpoint{Host: "127.0.0.1", Port: port})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if status := c.CheckConnection(context.Background()); status != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %s", status)
		}
	})
}

// TestProxyStatus tests status rendering and error mapping.
func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  ProxyStatus
		text    string
		wantErr error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.text {
			t.Errorf("expected %q, got %q", tt.text, got)
		}
		if err := tt.status.Err(); !errors.Is(err, tt.wantErr) {
			t.Errorf("status %s: expected error %v, got %v", tt.status, tt.wantErr, err)
		}
	}
}

// TestDialContextCancellation tests that DialContext honors cancellation
// even when the dial would block.
func TestDialContextCancellation(t *testing.T) {
	t.Parallel()

	// A listener that accepts but never answers keeps the SOCKS
	// handshake pending so the context deadline fires first.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		time.Sleep(5 * time.Second)
		_ = conn.Close()
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c, err := NewClient(Endpoint{Host: "127.0.0.1", Port: addr.Port})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.DialContext(ctx, "tcp", "example.com:80")
	if err == nil {
		t.Fatal("expected dial to fail under cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dial did not return promptly after cancellation: %v", elapsed)
	}
}
