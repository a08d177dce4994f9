package relay

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"citydir/internal/cmdport"
)

// serveOnce accepts one connection, hands it to fn, then closes it.
func serveOnce(t *testing.T, fn func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()
	return ln.Addr().String()
}

func TestSend_FirstChunk(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	addr := serveOnce(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		got <- string(buf[:n])
		_, _ = conn.Write([]byte("pong"))
	})

	resp, err := New(Config{}).Send(context.Background(), addr, "ping")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != "response: pong" {
		t.Fatalf("resp=%q", resp)
	}
	if cmd := <-got; cmd != "ping" {
		t.Fatalf("command=%q", cmd)
	}
}

func TestSend_PeerClosesWithoutReply(t *testing.T) {
	t.Parallel()

	addr := serveOnce(t, func(conn net.Conn) {})

	resp, err := New(Config{}).Send(context.Background(), addr, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != NoReply {
		t.Fatalf("resp=%q", resp)
	}
	if Outcome(resp, err) != "ok" {
		t.Fatalf("outcome=%q", Outcome(resp, err))
	}
}

func TestSend_NothingListening(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = New(Config{DialTimeout: time.Second}).Send(context.Background(), addr, "hello")
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("err=%v", err)
	}
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Addr != addr || rerr.Err == nil {
		t.Fatalf("err=%#v", err)
	}
	if Outcome("", err) != "connect" {
		t.Fatalf("outcome=%q", Outcome("", err))
	}
}

func TestSend_TimeoutWhenPeerStaysSilent(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	addr := serveOnce(t, func(conn net.Conn) {
		<-release
	})

	start := time.Now()
	_, err := New(Config{Timeout: 100 * time.Millisecond}).Send(context.Background(), addr, "hello")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("elapsed=%s", elapsed)
	}
}

func TestSend_ContextCancelUnblocksRead(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	addr := serveOnce(t, func(conn net.Conn) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := New(Config{Timeout: -1}).Send(ctx, addr, "hello")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause=%v", err)
	}
}

func TestSend_OnlyFirstReadIsReturned(t *testing.T) {
	t.Parallel()

	addr := serveOnce(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte(strings.Repeat("x", 4000)))
	})

	resp, err := New(Config{ReadSize: 16}).Send(context.Background(), addr, "dump")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	body := strings.TrimPrefix(resp, ResponsePrefix)
	if len(body) == 0 || len(body) > 16 {
		t.Fatalf("len=%d", len(body))
	}
}

func TestSend_InvalidUTF8IsReplaced(t *testing.T) {
	t.Parallel()

	addr := serveOnce(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte{'a', 0xff, 'b'})
	})

	resp, err := New(Config{}).Send(context.Background(), addr, "x")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp != "response: a�b" {
		t.Fatalf("resp=%q", resp)
	}
}

func TestSend_AgainstResponder(t *testing.T) {
	t.Parallel()

	r, err := cmdport.Listen("127.0.0.1:0", func(cmd string) string {
		return "echo " + cmd
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer r.Close()

	rl := New(Config{})
	for _, cmd := range []string{"a", "b", "c"} {
		resp, err := rl.Send(context.Background(), r.LocalAddr(), cmd)
		if err != nil {
			t.Fatalf("Send %s: %v", cmd, err)
		}
		if resp != "response: echo "+cmd {
			t.Fatalf("resp=%q", resp)
		}
	}
}

func TestLossyUTF8(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("héllo"), "héllo"},
		{[]byte{'h', 0xc3}, "h\uFFFD"},
		{[]byte{'h', 0xe2, 0x82}, "h\uFFFD"},
		{[]byte{'h', 0xf0, 0x9f, 0x98}, "h\uFFFD"},
		{[]byte{0xf0, 0x9f, 0x98, 'x'}, "\uFFFDx"},
		{[]byte{'a', 0xff, 0xfe, 'b'}, "a\uFFFD\uFFFDb"},
		{[]byte{0xe0, 0x80}, "\uFFFD\uFFFD"},
		{[]byte{0xed, 0xa0, 0x80}, "\uFFFD\uFFFD\uFFFD"},
		{[]byte{0xf4, 0x90, 0x80, 0x80}, "\uFFFD\uFFFD\uFFFD\uFFFD"},
		{[]byte{0xe2, 0x82, 0xac, 0xe2, 0x82}, "€\uFFFD"},
	}
	for _, tc := range cases {
		if got := lossyUTF8(tc.in); got != tc.want {
			t.Fatalf("in=%x got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestSend_ResetAfterCommandIsReadFailure(t *testing.T) {
	t.Parallel()

	addr := serveOnce(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
	})

	resp, err := New(Config{}).Send(context.Background(), addr, "ping")
	if !errors.Is(err, ErrReadFailed) {
		t.Fatalf("resp=%q err=%v", resp, err)
	}
	if KindOf(err) != KindRead {
		t.Fatalf("kind=%v", KindOf(err))
	}
	if got := Outcome(resp, err); got != "read" {
		t.Fatalf("outcome=%q", got)
	}
}

type pipeDialer struct{}

// DialContext returns a pipe whose far end is already closed, so the first
// write fails.
func (pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	near, far := net.Pipe()
	far.Close()
	return near, nil
}

func TestSend_WriteFailure(t *testing.T) {
	t.Parallel()

	resp, err := New(Config{Dialer: pipeDialer{}}).Send(context.Background(), "city:4000", "ping")
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("resp=%q err=%v", resp, err)
	}
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindWrite || rerr.Addr != "city:4000" {
		t.Fatalf("err=%#v", err)
	}
	if got := Outcome(resp, err); got != "write" {
		t.Fatalf("outcome=%q", got)
	}
}
