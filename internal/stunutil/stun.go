// Package stunutil discovers the public address of this host so a city can
// advertise a command address reachable by the directory.
package stunutil

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// MappedAddr asks each server in turn for our mapped address and returns the
// first answer. The mapped port belongs to the STUN socket, not to any
// listener, so callers normally keep only the host.
func MappedAddr(ctx context.Context, servers []string, timeout time.Duration) (string, error) {
	if len(servers) == 0 {
		return "", fmt.Errorf("no STUN servers provided")
	}

	var lastErr error
	for _, server := range servers {
		addr, err := probeServer(ctx, server, timeout)
		if err == nil {
			return addr, nil
		}
		lastErr = fmt.Errorf("%s: %w", server, err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// PublicHost returns only the host part of MappedAddr.
func PublicHost(ctx context.Context, servers []string, timeout time.Duration) (string, error) {
	addr, err := MappedAddr(ctx, servers, timeout)
	if err != nil {
		return "", err
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	return host, nil
}

func serverURI(server string) (*stun.URI, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return nil, fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}
	return stun.ParseURI(uriStr)
}

type binding struct {
	addr string
	err  error
}

// probeServer sends one Binding request and waits for the XOR-mapped address.
func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uri, err := serverURI(server)
	if err != nil {
		return "", err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	// Buffered so the handler never blocks after we stop listening.
	done := make(chan binding, 2)
	request := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	go func() {
		doErr := client.Do(request, func(ev stun.Event) {
			if ev.Error != nil {
				done <- binding{err: ev.Error}
				return
			}
			var mapped stun.XORMappedAddress
			if err := mapped.GetFrom(ev.Message); err != nil {
				done <- binding{err: fmt.Errorf("binding response: %w", err)}
				return
			}
			done <- binding{addr: mapped.String()}
		})
		if doErr != nil {
			done <- binding{err: doErr}
		}
	}()

	select {
	case b := <-done:
		return b.addr, b.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
