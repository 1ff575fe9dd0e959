package replication

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/time/rate"
)

// ReplicaHandle is one connected replica, tracked by the master registry.
type ReplicaHandle struct {
	ID           uint64
	Conn         net.Conn
	Capabilities []string

	ackOffset atomic.Int64

	outbox  chan []byte
	limiter *rate.Limiter

	writeMu sync.Mutex // guards the socket itself, never held with R or K
}

// AckOffset is the last offset this replica has acknowledged via
// REPLCONF ACK.
func (h *ReplicaHandle) AckOffset() int64 { return h.ackOffset.Load() }

// RecordAck updates the replica's acknowledged offset from an inbound
// REPLCONF ACK <offset>.
func (h *ReplicaHandle) RecordAck(offset int64) { h.ackOffset.Store(offset) }

// Registry is the master-side replica set plus the monotonic repl_offset
// counter, guarded by mu (= R). Acquired only after K, never before
// (spec.md §5's acquisition order K -> R). backlog is shared across every
// replica (it mirrors the single repl_offset stream, not any one
// connection), so a replica that drops and reconnects can resume against
// it even though its old ReplicaHandle is long gone.
type Registry struct {
	mu         sync.Mutex
	replicas   map[uint64]*ReplicaHandle
	nextID     uint64
	replOffset atomic.Int64
	replID     string

	backlog *backlog
}

// NewRegistry creates an empty registry with a fresh 40-hex replication ID.
func NewRegistry(backlogCap int) *Registry {
	return &Registry{
		replicas: make(map[uint64]*ReplicaHandle),
		replID:   randomHex40(),
		backlog:  newBacklog(backlogCap),
	}
}

func randomHex40() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ReplID returns the master's 40-hex replication ID.
func (r *Registry) ReplID() string { return r.replID }

// Offset returns the current repl_offset.
func (r *Registry) Offset() int64 { return r.replOffset.Load() }

// Register adds a newly handshaked replica and starts its flush worker.
func (r *Registry) Register(conn net.Conn, capabilities []string) *ReplicaHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	h := &ReplicaHandle{
		ID:           r.nextID,
		Conn:         conn,
		Capabilities: capabilities,
		outbox:       make(chan []byte, 1024),
		limiter:      rate.NewLimiter(rate.Inf, 0),
	}
	h.ackOffset.Store(r.replOffset.Load())
	r.replicas[h.ID] = h
	go h.flushLoop()
	return h
}

// Unregister removes a replica (connection closed).
func (r *Registry) Unregister(h *ReplicaHandle) {
	r.mu.Lock()
	delete(r.replicas, h.ID)
	r.mu.Unlock()
	close(h.outbox)
}

// SetThrottle caps a replica's propagation rate in bytes/sec (0 = unlimited).
func (h *ReplicaHandle) SetThrottle(bytesPerSec int) {
	if bytesPerSec <= 0 {
		h.limiter.SetLimit(rate.Inf)
		return
	}
	h.limiter.SetLimit(rate.Limit(bytesPerSec))
	h.limiter.SetBurst(bytesPerSec)
}

// flushLoop paces and writes outbox bytes (propagated commands and
// REPLCONF GETACK probes alike) to the replica's socket. It is the only
// goroutine that writes to h.Conn after registration.
func (h *ReplicaHandle) flushLoop() {
	for b := range h.outbox {
		if h.limiter.Limit() != rate.Inf {
			_ = h.limiter.WaitN(context.Background(), len(b))
		}
		h.writeMu.Lock()
		_, _ = h.Conn.Write(b)
		h.writeMu.Unlock()
	}
}

// Propagate serializes and fans out one committed write command to every
// connected replica, in commit order, advancing repl_offset by exactly
// its serialized length (invariant 6). Must be called from the same
// critical section as the command's commit (spec.md §9's Design Notes):
// callers hold the keyspace mutex K when calling this, and Registry's own
// mutex R is acquired strictly after K.
func (r *Registry) Propagate(serialized []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	newOffset := r.replOffset.Add(int64(len(serialized)))
	r.backlog.append(serialized, newOffset)
	for _, h := range r.replicas {
		select {
		case h.outbox <- serialized:
		default:
			// Outbox full: the replica is badly behind. Drop from the
			// live fan-out; the backlog still retains the bytes for a
			// reconnect within the grace window, and WAIT will simply
			// never see this replica ack the new offset until it drains.
		}
	}
}

// BacklogSince returns the raw (decompressed) command bytes propagated
// since offset, for a partial-resync PSYNC continuation, and whether
// offset still falls within the retained window. A replica whose claimed
// offset has already aged out of the backlog must fall back to a full
// resync.
func (r *Registry) BacklogSince(offset int64) ([]byte, bool) {
	return r.backlog.bytesSince(offset)
}

// Replicas returns a snapshot of currently connected handles.
func (r *Registry) Replicas() []*ReplicaHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ReplicaHandle, 0, len(r.replicas))
	for _, h := range r.replicas {
		out = append(out, h)
	}
	return out
}

// RequestAck sends REPLCONF GETACK * to every connected replica, used by
// WAIT to force a fresh acknowledgment.
func (r *Registry) RequestAck() {
	cmd := encodeGetAck()
	for _, h := range r.Replicas() {
		select {
		case h.outbox <- cmd:
		default:
		}
	}
}

func encodeGetAck() []byte {
	return []byte("*3\r\n$8\r\nREPLCONF\r\n$6\r\nGETACK\r\n$1\r\n*\r\n")
}

// Wait implements WAIT numreplicas timeout_ms: returns the number of
// replicas whose ack_offset >= the offset recorded at call time, blocking
// until numreplicas have acked or timeout elapses (0 = forever).
func (r *Registry) Wait(numReplicas int, timeout time.Duration) int {
	target := r.Offset()
	r.RequestAck()

	deadline := time.Now().Add(timeout)
	for {
		n := r.countAcked(target)
		if n >= numReplicas {
			return n
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return n
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (r *Registry) countAcked(target int64) int {
	n := 0
	for _, h := range r.Replicas() {
		if h.AckOffset() >= target {
			n++
		}
	}
	return n
}

// backlog is a bounded, lz4-compressed ring of recently propagated
// command bytes, kept so a replica that reconnects within the window can
// resume without a fresh FULLRESYNC (spec.md §9's explicit allowance to
// buffer serialized commands and flush later, repurposed here for fast
// reconnect rather than for flush pacing, which the rate limiter already
// covers). Every chunk remembers the repl_offset range it covers so a
// reconnecting replica's claimed offset can be located and replayed.
type backlog struct {
	mu       sync.Mutex
	cap      int
	size     int
	chunks   [][]byte // each entry is one lz4-compressed Propagate() payload, or raw if raw[i]
	raw      []bool   // true when chunks[i] is stored uncompressed (incompressible fallback)
	rawSizes []int    // decompressed length of chunks[i]
	starts   []int64  // repl_offset of chunks[i]'s first byte
	endOff   int64    // repl_offset just past the most recent chunk
}

func newBacklog(capBytes int) *backlog {
	if capBytes <= 0 {
		capBytes = 1 << 20
	}
	return &backlog{cap: capBytes}
}

func (b *backlog) append(rawBytes []byte, afterOffset int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	compressed := make([]byte, lz4.CompressBlockBound(len(rawBytes)))
	var c lz4.Compressor
	n, err := c.CompressBlock(rawBytes, compressed)
	fellBack := false
	if err != nil || n == 0 {
		// Incompressible or tiny payload: store raw and skip compression
		// rather than fail the hot path.
		compressed = append([]byte(nil), rawBytes...)
		fellBack = true
	} else {
		compressed = compressed[:n]
	}
	b.chunks = append(b.chunks, compressed)
	b.raw = append(b.raw, fellBack)
	b.rawSizes = append(b.rawSizes, len(rawBytes))
	b.starts = append(b.starts, afterOffset-int64(len(rawBytes)))
	b.size += len(rawBytes)
	b.endOff = afterOffset
	for b.size > b.cap && len(b.chunks) > 0 {
		b.size -= b.rawSizes[0]
		b.chunks = b.chunks[1:]
		b.raw = b.raw[1:]
		b.rawSizes = b.rawSizes[1:]
		b.starts = b.starts[1:]
	}
}

// bytesSince returns the decompressed command bytes propagated since
// offset, and whether offset still falls within the retained window
// ([oldest retained start, endOff]). A zero-length, ok=true result means
// offset already equals the tip: the replica is fully caught up.
func (b *backlog) bytesSince(offset int64) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset == b.endOff {
		return nil, true
	}
	if len(b.chunks) == 0 || offset < b.starts[0] || offset > b.endOff {
		return nil, false
	}
	var out []byte
	for i, chunk := range b.chunks {
		chunkEnd := b.starts[i] + int64(b.rawSizes[i])
		if chunkEnd <= offset {
			continue
		}
		var decoded []byte
		if b.raw[i] {
			decoded = chunk
		} else {
			decoded = make([]byte, b.rawSizes[i])
			n, err := lz4.UncompressBlock(chunk, decoded)
			if err != nil {
				return nil, false
			}
			decoded = decoded[:n]
		}
		if b.starts[i] < offset {
			decoded = decoded[offset-b.starts[i]:]
		}
		out = append(out, decoded...)
	}
	return out, true
}
