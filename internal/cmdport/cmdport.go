// Package cmdport is the city side of the command relay: a TCP listener that
// reads one command per connection, writes at most one reply and closes.
package cmdport

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	readSize    = 1024
	connTimeout = 30 * time.Second
)

// Handler computes the reply for a command. An empty reply closes the
// connection without writing, which the relay reports as "OK".
type Handler func(command string) string

// Responder accepts command connections.
type Responder struct {
	ln      net.Listener
	handler Handler
	log     *slog.Logger

	wg sync.WaitGroup
}

// Listen starts a responder on addr (e.g. ":0").
func Listen(addr string, handler Handler, logger *slog.Logger) (*Responder, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Responder{ln: ln, handler: handler, log: logger}
	r.wg.Add(1)
	go r.serve()
	return r, nil
}

// LocalAddr returns the listening address.
func (r *Responder) LocalAddr() string {
	if r == nil || r.ln == nil {
		return ""
	}
	return r.ln.Addr().String()
}

// Close stops accepting and waits for in-flight connections.
func (r *Responder) Close() error {
	if r == nil || r.ln == nil {
		return nil
	}
	err := r.ln.Close()
	r.wg.Wait()
	return err
}

func (r *Responder) serve() {
	defer r.wg.Done()
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.log.Warn("command accept failed", "error", err)
			}
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(conn)
		}()
	}
}

func (r *Responder) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, readSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil {
			r.log.Debug("command read failed", "remote", conn.RemoteAddr().String(), "error", err)
		}
		return
	}

	command := string(buf[:n])
	reply := ""
	if r.handler != nil {
		reply = r.handler(command)
	}
	r.log.Debug("command", "remote", conn.RemoteAddr().String(), "command", command, "reply_bytes", len(reply))
	if reply == "" {
		return
	}
	if _, err := conn.Write([]byte(reply)); err != nil {
		r.log.Warn("command reply failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}
