package stunutil

import (
	"context"
	"testing"
	"time"
)

func TestMappedAddr_NoServers(t *testing.T) {
	t.Parallel()

	if _, err := MappedAddr(context.Background(), nil, time.Second); err == nil {
		t.Fatalf("expected error")
	}
}

func TestServerURI(t *testing.T) {
	t.Parallel()

	uri, err := serverURI(" stun.example.org:3478 ")
	if err != nil {
		t.Fatalf("serverURI: %v", err)
	}
	if uri.Host != "stun.example.org" || uri.Port != 3478 {
		t.Fatalf("uri=%+v", uri)
	}
	if _, err := serverURI(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMappedAddr_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := MappedAddr(ctx, []string{"127.0.0.1:1"}, 100*time.Millisecond); err == nil {
		t.Fatalf("expected error")
	}
}
