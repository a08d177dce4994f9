package cmdport

import (
	"io"
	"net"
	"testing"
	"time"
)

func roundTrip(t *testing.T, addr, command string) string {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte(command)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(data)
}

func TestResponder_RepliesAndCloses(t *testing.T) {
	t.Parallel()

	r, err := Listen("127.0.0.1:0", func(cmd string) string {
		if cmd == "ping" {
			return "pong"
		}
		return ""
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer r.Close()

	if got := roundTrip(t, r.LocalAddr(), "ping"); got != "pong" {
		t.Fatalf("got=%q", got)
	}
	if got := roundTrip(t, r.LocalAddr(), "unknown"); got != "" {
		t.Fatalf("got=%q", got)
	}
}

func TestResponder_CloseStopsAccepting(t *testing.T) {
	t.Parallel()

	r, err := Listen("127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := r.LocalAddr()
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		conn.Close()
		t.Fatalf("expected dial failure after Close")
	}
}
