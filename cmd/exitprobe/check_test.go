package main

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
)

// fakeSOCKSGreeter accepts connections and answers the SOCKS5 method
// negotiation with "no authentication required".
func fakeSOCKSGreeter(t *testing.T) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 2)
				if _, err := io.ReadFull(c, buf); err != nil {
					return
				}
				// Drain the offered methods, then accept no-auth.
				methods := make([]byte, int(buf[1]))
				if _, err := io.ReadFull(c, methods); err != nil {
					return
				}
				_, _ = c.Write([]byte{0x05, 0x00})
			}(conn)
		}
	}()

	return ln
}

// TestCheckCmd tests the proxy connectivity check.
func TestCheckCmd(t *testing.T) {
	t.Parallel()

	t.Run("reports OK for a SOCKS5 listener", func(t *testing.T) {
		t.Parallel()

		ln := fakeSOCKSGreeter(t)

		cmd := NewCheckCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--proxy", ln.Addr().String()})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "OK") {
			t.Errorf("expected OK status, got %q", out.String())
		}
	})

	t.Run("fails for an unreachable proxy", func(t *testing.T) {
		t.Parallel()

		// Grab a port and close it so nothing is listening there.
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		cmd := NewCheckCmd()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--proxy", addr})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error for unreachable proxy")
		}
	})

	t.Run("rejects a malformed address", func(t *testing.T) {
		t.Parallel()

		cmd := NewCheckCmd()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--proxy", "not-an-address"})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error for malformed address")
		}
	})
}
