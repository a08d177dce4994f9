package relay

import (
	"errors"
	"fmt"
)

// Kind classifies relay failures.
type Kind int

const (
	KindConnect Kind = iota + 1
	KindWrite
	KindRead
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrConnectFailed = errors.New("relay: connect failed")
	ErrWriteFailed   = errors.New("relay: write failed")
	ErrReadFailed    = errors.New("relay: read failed")
	ErrTimeout       = errors.New("relay: timed out waiting for response")
)

// Error is returned by Send. Err is the transport cause, kept for diagnostics.
type Error struct {
	Kind Kind
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay %s %s: %v", e.Kind, e.Addr, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) and friends match by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnectFailed:
		return e.Kind == KindConnect
	case ErrWriteFailed:
		return e.Kind == KindWrite
	case ErrReadFailed:
		return e.Kind == KindRead
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// KindOf returns the relay kind of err, or 0 when err is not a relay error.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return 0
}
