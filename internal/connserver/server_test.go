package connserver

import (
	"context"
	"net"
	"testing"
	"time"

	"redikv/internal/blocking"
	"redikv/internal/dispatcher"
	"redikv/internal/pubsub"
	"redikv/internal/resp"
	"redikv/internal/store"
)

func TestServeAcceptsAndRespondsToPing(t *testing.T) {
	disp := dispatcher.New(store.New(), blocking.New(), pubsub.New())
	srv := New("127.0.0.1:0", disp)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	var addr string
	for i := 0; i < 100; i++ {
		if a := srv.Addr(); a != "127.0.0.1:0" {
			addr = a
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("server never bound a listener")
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}

	if err := resp.WriteCommand(conn, "PING"); err != nil {
		t.Fatal(err)
	}
	dec := resp.NewDecoder(conn)
	v, err := dec.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if v.Str != "PONG" {
		t.Fatalf("got %q", v.Str)
	}

	if n := srv.ConnectionCount(); n != 1 {
		t.Fatalf("connection count = %d, want 1", n)
	}

	// Close the client so serveConn's blocking read unblocks before
	// Serve's shutdown path waits on connWG.
	conn.Close()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not shut down after cancel")
	}
}
