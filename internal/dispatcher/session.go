// Package dispatcher routes decoded RESP requests to command handlers
// against the shared keyspace, blocking coordinator, pub/sub hub,
// transaction state machine, and replication registry, per spec.md §4 and
// §5's command table. Grounded on the teacher's executor/shake package's
// table-driven dispatch, generalized from a one-shot migration-step
// execution model into a long-lived per-connection command loop.
package dispatcher

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"redikv/internal/replication"
	"redikv/internal/resp"
	"redikv/internal/txn"
)

var nextSessionID atomic.Uint64

// Session is per-connection state: the transaction machine, the set of
// subscribed pub/sub channels, and the socket write path (serialized by
// writeMu since both command replies and asynchronous pub/sub pushes
// share the same connection).
type Session struct {
	id   uint64
	conn net.Conn
	enc  *resp.Encoder

	writeMu sync.Mutex

	Txn txn.State

	subMu      sync.Mutex
	subscribed map[string]bool

	// IsReplicaConn is set once this connection has completed PSYNC and
	// become a replica fan-out target. Dispatch does not consult it: the
	// connection's later traffic (REPLCONF ACK) still goes through the
	// ordinary command table.
	IsReplicaConn bool

	ReplConf replication.ReplConfState
	Replica  *replication.ReplicaHandle
}

// NewSession wraps an accepted connection.
func NewSession(conn net.Conn) *Session {
	return &Session{
		id:         nextSessionID.Add(1),
		conn:       conn,
		enc:        resp.NewEncoder(conn),
		subscribed: make(map[string]bool),
	}
}

// NewHeadlessSession creates a session with no backing socket, used to
// apply a replicated command against the keyspace without a client
// connection to reply to (its writes go to io.Discard).
func NewHeadlessSession() *Session {
	return &Session{
		id:         nextSessionID.Add(1),
		enc:        resp.NewEncoder(io.Discard),
		subscribed: make(map[string]bool),
	}
}

func (s *Session) ID() uint64 { return s.id }

// Push implements pubsub.Subscriber: deliver one message frame to this
// connection, serialized against any concurrent command reply.
func (s *Session) Push(channel string, payload []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.enc.ArrayHeader(3)
	_ = s.enc.BulkStringFrom("message")
	_ = s.enc.BulkStringFrom(channel)
	_ = s.enc.BulkString(payload)
	_ = s.enc.Flush()
}

// InSubscribeMode reports whether this connection has at least one
// subscription, which per spec.md §4.7 restricts it to pub/sub and a
// small allow-list of commands.
func (s *Session) InSubscribeMode() bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribed) > 0
}

func (s *Session) addSub(channel string) {
	s.subMu.Lock()
	s.subscribed[channel] = true
	s.subMu.Unlock()
}

func (s *Session) removeSub(channel string) {
	s.subMu.Lock()
	delete(s.subscribed, channel)
	s.subMu.Unlock()
}

func (s *Session) subCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribed)
}

// SubscribedChannels returns the channels this session currently
// subscribes to, used by connserver on disconnect to clean up the hub.
func (s *Session) SubscribedChannels() []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]string, 0, len(s.subscribed))
	for c := range s.subscribed {
		out = append(out, c)
	}
	return out
}

// lockedEncoder wraps the encoder with the session's write lock, so replies never
// interleave with an asynchronous Push from another goroutine publishing
// to a channel this session is subscribed to.
func (s *Session) lockedEncoder(fn func(*resp.Encoder) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := fn(s.enc); err != nil {
		return err
	}
	return s.enc.Flush()
}

func wrongNumArgs(cmd string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", cmd)
}
