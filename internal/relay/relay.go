// Package relay forwards a single text command to a city's TCP command port.
//
// The command port speaks no framing: the command is written as raw bytes and
// the first chunk the city sends back is the whole reply. A city that closes
// the connection without writing anything is treated as a successful "OK".
package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultReadSize    = 1024
	DefaultTimeout     = 10 * time.Second
	DefaultDialTimeout = 5 * time.Second

	// NoReply is returned when the city closes without sending data.
	NoReply = "OK"
	// ResponsePrefix is prepended to the first chunk received.
	ResponsePrefix = "response: "
)

// Dialer opens connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config controls a Relay. Zero values select the defaults.
type Config struct {
	// DialTimeout bounds the single connect attempt.
	DialTimeout time.Duration
	// Timeout bounds the write and the wait for the first response chunk.
	// A negative value disables the deadline.
	Timeout time.Duration
	// ReadSize is the largest reply accepted; anything beyond the first
	// read is discarded.
	ReadSize int
	Dialer   Dialer
}

// Relay sends commands. It holds no connections between calls and is safe
// for concurrent use.
type Relay struct {
	cfg Config
}

// New constructs a relay, filling in defaults.
func New(cfg Config) *Relay {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{Timeout: cfg.DialTimeout}
	}
	return &Relay{cfg: cfg}
}

// Send connects to address, writes command and returns the first reply chunk
// prefixed with ResponsePrefix, or NoReply if the peer closed without data.
// The connection is closed before Send returns.
func (r *Relay) Send(ctx context.Context, address, command string) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.DialTimeout)
	conn, err := r.cfg.Dialer.DialContext(dialCtx, "tcp", address)
	cancel()
	if err != nil {
		return "", &Error{Kind: KindConnect, Addr: address, Err: err}
	}
	defer conn.Close()

	// Cancelling ctx unblocks the pending write or read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if r.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(r.cfg.Timeout))
	}

	if _, err := conn.Write([]byte(command)); err != nil {
		return "", r.classify(ctx, KindWrite, address, err)
	}

	buf := make([]byte, r.cfg.ReadSize)
	n, err := conn.Read(buf)
	if n > 0 {
		return ResponsePrefix + lossyUTF8(buf[:n]), nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return NoReply, nil
	}
	return "", r.classify(ctx, KindRead, address, err)
}

func (r *Relay) classify(ctx context.Context, kind Kind, address string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return &Error{Kind: kind, Addr: address, Err: ctxErr}
	}
	if kind == KindRead && errors.Is(err, os.ErrDeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Addr: address, Err: err}
}

// Outcome labels a Send result for metrics: "response", "ok" or the error kind.
func Outcome(reply string, err error) string {
	if err != nil {
		if k := KindOf(err); k != 0 {
			return k.String()
		}
		return "error"
	}
	if reply == NoReply {
		return "ok"
	}
	return "response"
}

// lossyUTF8 decodes b, replacing each maximal invalid subsequence with one
// U+FFFD. A multi-byte character cut off at the end of a chunk becomes a single
// replacement character.
func lossyUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[invalidPrefixLen(b):]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
	return sb.String()
}

// invalidPrefixLen returns how many bytes of b belong to the invalid sequence
// starting at b[0]: the lead byte plus the continuation bytes that were still
// acceptable for it.
func invalidPrefixLen(b []byte) int {
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}

	n := 1
	for ; n <= need && n < len(b); n++ {
		if b[n] < lo || b[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}
