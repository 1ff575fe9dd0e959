package dispatcher

import (
	"net"
	"testing"
	"time"

	"redikv/internal/blocking"
	"redikv/internal/pubsub"
	"redikv/internal/resp"
	"redikv/internal/store"
)

// newTestDispatch wires a Dispatcher with a Session fed by one end of a
// net.Pipe, and returns a decoder reading replies off the other end.
func newTestDispatch(t *testing.T) (*Dispatcher, *Session, *resp.Decoder, func()) {
	t.Helper()
	d := New(store.New(), blocking.New(), pubsub.New())
	serverConn, clientConn := net.Pipe()
	sess := NewSession(serverConn)
	dec := resp.NewDecoder(clientConn)
	return d, sess, dec, func() { serverConn.Close(); clientConn.Close() }
}

func req(args ...string) *resp.Request {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return &resp.Request{Args: out}
}

func TestPingReplies(t *testing.T) {
	d, sess, dec, cleanup := newTestDispatch(t)
	defer cleanup()

	go d.Dispatch(sess, req("PING"))

	v, err := dec.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if v.Str != "PONG" {
		t.Fatalf("got %q", v.Str)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	d, sess, dec, cleanup := newTestDispatch(t)
	defer cleanup()

	go func() {
		d.Dispatch(sess, req("SET", "k", "v"))
		d.Dispatch(sess, req("GET", "k"))
	}()

	if v, err := dec.ReadReply(); err != nil || v.Str != "OK" {
		t.Fatalf("SET reply: %v %v", v, err)
	}
	v, err := dec.ReadReply()
	if err != nil || v.Str != "v" {
		t.Fatalf("GET reply: %v %v", v, err)
	}
}

func TestUnknownCommandErrors(t *testing.T) {
	d, sess, dec, cleanup := newTestDispatch(t)
	defer cleanup()

	go d.Dispatch(sess, req("NOTACOMMAND"))

	v, err := dec.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if v.Type != resp.TypeError {
		t.Fatalf("expected error reply, got %v", v)
	}
}

func TestMultiExecQueuesAndRuns(t *testing.T) {
	d, sess, dec, cleanup := newTestDispatch(t)
	defer cleanup()

	go func() {
		d.Dispatch(sess, req("MULTI"))
		d.Dispatch(sess, req("SET", "k", "1"))
		d.Dispatch(sess, req("INCR", "k"))
		d.Dispatch(sess, req("EXEC"))
	}()

	if v, err := dec.ReadReply(); err != nil || v.Str != "OK" {
		t.Fatalf("MULTI reply: %v %v", v, err)
	}
	if v, err := dec.ReadReply(); err != nil || v.Str != "QUEUED" {
		t.Fatalf("queue reply 1: %v %v", v, err)
	}
	if v, err := dec.ReadReply(); err != nil || v.Str != "QUEUED" {
		t.Fatalf("queue reply 2: %v %v", v, err)
	}
	exec, err := dec.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if exec.Type != resp.TypeArray || len(exec.Array) != 2 {
		t.Fatalf("exec reply: %v", exec)
	}
	if exec.Array[1].Int != 2 {
		t.Fatalf("INCR result in EXEC = %d, want 2", exec.Array[1].Int)
	}
}

func TestBlockingPushWakesWaiter(t *testing.T) {
	d, sess, dec, cleanup := newTestDispatch(t)
	defer cleanup()

	resultCh := make(chan struct{})
	go func() {
		d.Dispatch(sess, req("BLPOP", "q", "1"))
		close(resultCh)
	}()

	// Give the BLPOP call time to park before pushing, using a second
	// headless session so the push doesn't collide with sess's writeMu.
	time.Sleep(20 * time.Millisecond)
	pusher := NewHeadlessSession()
	if keepOpen := d.Dispatch(pusher, req("LPUSH", "q", "v1")); !keepOpen {
		t.Fatal("dispatch returned false unexpectedly")
	}

	v, err := dec.ReadReply()
	if err != nil {
		t.Fatal(err)
	}
	if v.Type != resp.TypeArray || len(v.Array) != 2 || v.Array[1].Str != "v1" {
		t.Fatalf("BLPOP reply = %v", v)
	}
	<-resultCh
}

func TestApplyNoReplyRunsPropagatedCommand(t *testing.T) {
	d := New(store.New(), blocking.New(), pubsub.New())
	if err := ApplyNoReply(d, [][]byte{[]byte("SET"), []byte("k"), []byte("v")}); err != nil {
		t.Fatal(err)
	}
	v, err := d.Keyspace.Get("k")
	if err != nil || string(v) != "v" {
		t.Fatalf("got %q, %v", v, err)
	}
}
