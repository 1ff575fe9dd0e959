package dispatcher

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"redikv/internal/blocking"
	"redikv/internal/pubsub"
	"redikv/internal/replication"
	"redikv/internal/resp"
	"redikv/internal/store"
)

// Dispatcher holds the shared server state every connection routes
// commands against.
type Dispatcher struct {
	Keyspace *store.Keyspace
	Blocking *blocking.Coordinator
	Hub      *pubsub.Hub

	Role     replication.Role
	Registry *replication.Registry // non-nil only when Role == RoleMaster
	Upstream *replication.Upstream // non-nil only when Role == RoleReplica

	// SnapshotFn returns the RDB payload sent to a replica on a full
	// resync; wired by main.
	SnapshotFn func() []byte

	// ConfigDir/ConfigDBFilename answer CONFIG GET dir/dbfilename.
	ConfigDir        string
	ConfigDBFilename string
}

// New wires a dispatcher from the server's shared components.
func New(ks *store.Keyspace, bc *blocking.Coordinator, hub *pubsub.Hub) *Dispatcher {
	return &Dispatcher{Keyspace: ks, Blocking: bc, Hub: hub, Role: replication.RoleMaster}
}

// handlerFunc executes one command, given its raw args (args[0] is the
// command name) and returns an error that, if non-nil, is written back as
// a RESP error reply by Dispatch's caller.
type handlerFunc func(d *Dispatcher, s *Session, args [][]byte) error

var table map[string]handlerFunc

func init() {
	table = map[string]handlerFunc{
		"PING":    (*Dispatcher).cmdPing,
		"ECHO":    (*Dispatcher).cmdEcho,
		"QUIT":    (*Dispatcher).cmdQuit,
		"SELECT":  (*Dispatcher).cmdSelect,
		"CONFIG":  (*Dispatcher).cmdConfig,
		"INFO":    (*Dispatcher).cmdInfo,
		"COMMAND": (*Dispatcher).cmdCommand,

		"SET":    (*Dispatcher).cmdSet,
		"GET":    (*Dispatcher).cmdGet,
		"DEL":    (*Dispatcher).cmdDel,
		"EXISTS": (*Dispatcher).cmdExists,
		"TYPE":   (*Dispatcher).cmdType,
		"KEYS":   (*Dispatcher).cmdKeys,
		"INCR":   (*Dispatcher).cmdIncr,
		"INCRBY": (*Dispatcher).cmdIncrBy,

		"LPUSH": (*Dispatcher).cmdPush,
		"RPUSH": (*Dispatcher).cmdPush,
		"LPOP":  (*Dispatcher).cmdPop,
		"RPOP":  (*Dispatcher).cmdPop,
		"LLEN":  (*Dispatcher).cmdLLen,
		"LRANGE": (*Dispatcher).cmdLRange,
		"BLPOP":  (*Dispatcher).cmdBLPop,
		"BRPOP":  (*Dispatcher).cmdBLPop,

		"XADD":   (*Dispatcher).cmdXAdd,
		"XRANGE": (*Dispatcher).cmdXRange,
		"XREAD":  (*Dispatcher).cmdXRead,

		"ZADD":   (*Dispatcher).cmdZAdd,
		"ZSCORE": (*Dispatcher).cmdZScore,
		"ZRANK":  (*Dispatcher).cmdZRank,
		"ZCARD":  (*Dispatcher).cmdZCard,
		"ZRANGE": (*Dispatcher).cmdZRange,
		"ZREM":   (*Dispatcher).cmdZRem,

		"MULTI":   (*Dispatcher).cmdMulti,
		"EXEC":    (*Dispatcher).cmdExec,
		"DISCARD": (*Dispatcher).cmdDiscard,

		"SUBSCRIBE":   (*Dispatcher).cmdSubscribe,
		"UNSUBSCRIBE": (*Dispatcher).cmdUnsubscribe,
		"PUBLISH":     (*Dispatcher).cmdPublish,

		"REPLCONF": (*Dispatcher).cmdReplConf,
		"PSYNC":    (*Dispatcher).cmdPsync,
		"WAIT":     (*Dispatcher).cmdWait,
	}
}

// subscribeModeAllowed lists commands a connection may still issue once
// it has an active subscription, per spec.md §4.7.
var subscribeModeAllowed = map[string]bool{
	"SUBSCRIBE": true, "UNSUBSCRIBE": true, "PING": true, "QUIT": true,
}

// Dispatch routes one decoded request to its handler, writing the reply
// (or a RESP error) through the session's encoder. It returns false if
// the connection should be closed after this command (QUIT).
func (d *Dispatcher) Dispatch(s *Session, req *resp.Request) bool {
	if len(req.Args) == 0 {
		return true
	}
	name := strings.ToUpper(string(req.Args[0]))

	if s.InSubscribeMode() && !subscribeModeAllowed[name] {
		_ = s.lockedEncoder(func(e *resp.Encoder) error {
			return e.Error("ERR only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT allowed in this context")
		})
		return true
	}

	// Transaction queuing: once MULTI is active, every command except
	// EXEC/DISCARD/MULTI is queued rather than executed, per spec.md §4.6.
	if s.Txn.Active && name != "EXEC" && name != "DISCARD" && name != "MULTI" {
		if _, ok := table[name]; !ok {
			s.Txn.MarkError()
			_ = s.lockedEncoder(func(e *resp.Encoder) error {
				return e.Error("ERR unknown command '" + name + "'")
			})
			return true
		}
		s.Txn.Queue(req.Args)
		_ = s.lockedEncoder(func(e *resp.Encoder) error {
			return e.SimpleString("QUEUED")
		})
		return true
	}

	h, ok := table[name]
	if !ok {
		_ = s.lockedEncoder(func(e *resp.Encoder) error {
			return e.Error("ERR unknown command '" + name + "'")
		})
		return true
	}
	if err := h(d, s, req.Args); err != nil {
		_ = s.lockedEncoder(func(e *resp.Encoder) error { return e.Error(err.Error()) })
	}
	if name == "QUIT" {
		return false
	}
	return true
}

// propagate serializes a write command and fans it out to replicas, if
// this server is currently a master with any connected. Called after the
// keyspace mutation has already been committed, within the same command
// handler, so propagation order always matches commit order (spec.md §5's
// ordering invariant).
func (d *Dispatcher) propagate(args [][]byte) {
	if d.Role != replication.RoleMaster || d.Registry == nil {
		return
	}
	d.Registry.Propagate(encodeCommand(args))
}

// waitAnyKey parks on every key in keys at once and returns as soon as the
// first one is satisfied, per spec.md §4.3/§4.4: BLPOP/XREAD watch every
// listed key, not just the first. Each key gets its own FIFO waiter (the
// coordinator has no notion of a waiter spanning multiple keys), so the
// wait itself fans out one goroutine per key and the first reply wins;
// every other key's now-stale waiter is cancelled before returning so it
// doesn't linger in that key's queue waiting for a delivery that will
// never be claimed.
func (d *Dispatcher) waitAnyKey(keys []string, timeout time.Duration) (key string, result any, ok bool) {
	waiters := make(map[string]*blocking.Waiter, len(keys))
	for _, k := range keys {
		waiters[k] = d.Blocking.Enqueue(k, timeout)
	}
	type outcome struct {
		key    string
		result any
		ok     bool
	}
	results := make(chan outcome, len(keys))
	for k, w := range waiters {
		k, w := k, w
		go func() {
			v, ok := d.Blocking.Wait(k, w)
			results <- outcome{k, v, ok}
		}()
	}
	first := <-results
	for k, w := range waiters {
		if k == first.key {
			continue
		}
		d.Blocking.Cancel(k, w)
	}
	return first.key, first.result, first.ok
}

func encodeCommand(args [][]byte) []byte {
	strArgs := make([]string, len(args)-1)
	for i, a := range args[1:] {
		strArgs[i] = string(a)
	}
	var buf bytes.Buffer
	_ = resp.WriteCommand(&buf, string(args[0]), strArgs...)
	return buf.Bytes()
}

func (d *Dispatcher) cmdPing(s *Session, args [][]byte) error {
	msg := "PONG"
	if len(args) > 1 {
		msg = string(args[1])
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if len(args) > 1 {
			return e.BulkStringFrom(msg)
		}
		return e.SimpleString(msg)
	})
}

func (d *Dispatcher) cmdEcho(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("echo")
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.BulkString(args[1]) })
}

func (d *Dispatcher) cmdQuit(s *Session, args [][]byte) error {
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString("OK") })
}

func (d *Dispatcher) cmdSelect(s *Session, args [][]byte) error {
	// Single shared keyspace only (spec.md Non-goals): accept and no-op
	// so clients that always SELECT 0 on connect don't fail.
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString("OK") })
}

func (d *Dispatcher) cmdConfig(s *Session, args [][]byte) error {
	if len(args) < 2 {
		return wrongNumArgs("config")
	}
	switch strings.ToUpper(string(args[1])) {
	case "GET":
		if len(args) != 3 {
			return wrongNumArgs("config|get")
		}
		val, ok := store.ConfigGet(d.ConfigDir, d.ConfigDBFilename, string(args[2]))
		return s.lockedEncoder(func(e *resp.Encoder) error {
			if !ok {
				return e.ArrayHeader(0)
			}
			if err := e.ArrayHeader(2); err != nil {
				return err
			}
			if err := e.BulkString(args[2]); err != nil {
				return err
			}
			return e.BulkStringFrom(val)
		})
	default:
		return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString("OK") })
	}
}

func (d *Dispatcher) cmdInfo(s *Session, args [][]byte) error {
	body := replication.InfoReplication(d.Role, d.Registry, d.Upstream)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.BulkStringFrom(body) })
}

func (d *Dispatcher) cmdCommand(s *Session, args [][]byte) error {
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.ArrayHeader(0) })
}

// ApplyNoReply runs one command from the replication stream against d's
// keyspace, using a headless session whose reply is discarded. The
// propagated command's own handler naturally becomes a no-op on
// propagation (Dispatcher.propagate only fans out when Role is
// RoleMaster), so a chain of replicas never re-propagates what it applies.
func ApplyNoReply(d *Dispatcher, args [][]byte) error {
	if len(args) == 0 {
		return nil
	}
	name := strings.ToUpper(string(args[0]))
	h, ok := table[name]
	if !ok {
		return fmt.Errorf("replication: unknown propagated command %q", name)
	}
	return h(d, NewHeadlessSession(), args)
}
