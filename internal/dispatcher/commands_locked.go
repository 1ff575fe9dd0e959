package dispatcher

import (
	"strconv"
	"strings"
	"time"

	"redikv/internal/resp"
	"redikv/internal/store"
)

// lockedHandlerFunc is handlerFunc for a caller that already holds
// d.Keyspace's mutex across the whole call, as EXEC does across its batch
// (spec.md §4.6/§5: EXEC executes as one atomic unit). It must never call
// a self-locking Keyspace method, only the *Locked variants.
type lockedHandlerFunc func(d *Dispatcher, s *Session, args [][]byte) error

// lockedTable holds the subset of table whose commands touch the
// keyspace and therefore need a lock-free path for EXEC. Commands not
// listed here (PING, SELECT, SUBSCRIBE, REPLCONF, ...) never call
// Keyspace.Lock themselves, so cmdExec runs them straight off table
// instead of duplicating them here.
var lockedTable = map[string]lockedHandlerFunc{
	"SET":    (*Dispatcher).cmdSetLocked,
	"GET":    (*Dispatcher).cmdGetLocked,
	"DEL":    (*Dispatcher).cmdDelLocked,
	"EXISTS": (*Dispatcher).cmdExistsLocked,
	"TYPE":   (*Dispatcher).cmdTypeLocked,
	"KEYS":   (*Dispatcher).cmdKeysLocked,
	"INCR":   (*Dispatcher).cmdIncrLocked,
	"INCRBY": (*Dispatcher).cmdIncrByLocked,

	"LPUSH":  (*Dispatcher).cmdPushLocked,
	"RPUSH":  (*Dispatcher).cmdPushLocked,
	"LPOP":   (*Dispatcher).cmdPopLocked,
	"RPOP":   (*Dispatcher).cmdPopLocked,
	"LLEN":   (*Dispatcher).cmdLLenLocked,
	"LRANGE": (*Dispatcher).cmdLRangeLocked,
	"BLPOP":  (*Dispatcher).cmdBLPopLocked,
	"BRPOP":  (*Dispatcher).cmdBLPopLocked,

	"XADD":   (*Dispatcher).cmdXAddLocked,
	"XRANGE": (*Dispatcher).cmdXRangeLocked,
	"XREAD":  (*Dispatcher).cmdXReadLocked,

	"ZADD":   (*Dispatcher).cmdZAddLocked,
	"ZSCORE": (*Dispatcher).cmdZScoreLocked,
	"ZRANK":  (*Dispatcher).cmdZRankLocked,
	"ZCARD":  (*Dispatcher).cmdZCardLocked,
	"ZRANGE": (*Dispatcher).cmdZRangeLocked,
	"ZREM":   (*Dispatcher).cmdZRemLocked,
}

func (d *Dispatcher) cmdSetLocked(s *Session, args [][]byte) error {
	if len(args) < 3 {
		return wrongNumArgs("set")
	}
	var ttl time.Duration
	hasTTL := false
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "EX":
			if i+1 >= len(args) {
				return wrongNumArgs("set")
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil {
				return store.ErrNotInteger
			}
			ttl, hasTTL = time.Duration(n)*time.Second, true
			i++
		case "PX":
			if i+1 >= len(args) {
				return wrongNumArgs("set")
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil {
				return store.ErrNotInteger
			}
			ttl, hasTTL = time.Duration(n)*time.Millisecond, true
			i++
		}
	}
	d.Keyspace.SetLocked(string(args[1]), args[2], ttl, hasTTL)
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString("OK") })
}

func (d *Dispatcher) cmdGetLocked(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("get")
	}
	v, err := d.Keyspace.GetLocked(string(args[1]))
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if v == nil {
			return e.NullBulk()
		}
		return e.BulkString(v)
	})
}

func (d *Dispatcher) cmdDelLocked(s *Session, args [][]byte) error {
	if len(args) < 2 {
		return wrongNumArgs("del")
	}
	keys := make([]string, len(args)-1)
	for i, k := range args[1:] {
		keys[i] = string(k)
	}
	n := d.Keyspace.DelLocked(keys...)
	if n > 0 {
		d.propagate(args)
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdExistsLocked(s *Session, args [][]byte) error {
	if len(args) < 2 {
		return wrongNumArgs("exists")
	}
	n := 0
	for _, k := range args[1:] {
		if d.Keyspace.ExistsLocked(string(k)) {
			n++
		}
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdTypeLocked(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("type")
	}
	t := d.Keyspace.TypeLocked(string(args[1]))
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString(t.String()) })
}

func (d *Dispatcher) cmdKeysLocked(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("keys")
	}
	keys := d.Keyspace.KeysLocked(string(args[1]))
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if err := e.ArrayHeader(len(keys)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := e.BulkStringFrom(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Dispatcher) cmdIncrLocked(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("incr")
	}
	n, err := d.Keyspace.IncrLocked(string(args[1]), 1)
	if err != nil {
		return err
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(n) })
}

func (d *Dispatcher) cmdIncrByLocked(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("incrby")
	}
	by, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return store.ErrNotInteger
	}
	n, err := d.Keyspace.IncrLocked(string(args[1]), by)
	if err != nil {
		return err
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(n) })
}

func (d *Dispatcher) cmdPushLocked(s *Session, args [][]byte) error {
	if len(args) < 3 {
		return wrongNumArgs("push")
	}
	key := string(args[1])
	left := strings.EqualFold(string(args[0]), "LPUSH")
	n, err := d.Keyspace.PushLocked(key, left, args[2:])
	if err != nil {
		return err
	}
	for d.Blocking.FirstWaiter(key) != nil {
		v := d.Keyspace.PopLocked(key, left)
		if v == nil {
			break
		}
		if !d.Blocking.Deliver(key, v) {
			break
		}
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdPopLocked(s *Session, args [][]byte) error {
	if len(args) < 2 {
		return wrongNumArgs("pop")
	}
	left := strings.EqualFold(string(args[0]), "LPOP")
	count := 1
	multi := false
	if len(args) >= 3 {
		n, err := strconv.Atoi(string(args[2]))
		if err != nil {
			return store.ErrNotInteger
		}
		count, multi = n, true
	}
	vals, err := d.Keyspace.PopNLocked(string(args[1]), left, count)
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		d.propagate(args)
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if !multi {
			if len(vals) == 0 {
				return e.NullBulk()
			}
			return e.BulkString(vals[0])
		}
		if err := e.ArrayHeader(len(vals)); err != nil {
			return err
		}
		for _, v := range vals {
			if err := e.BulkString(v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Dispatcher) cmdLLenLocked(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("llen")
	}
	n, err := d.Keyspace.LenLocked(string(args[1]))
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdLRangeLocked(s *Session, args [][]byte) error {
	if len(args) != 4 {
		return wrongNumArgs("lrange")
	}
	start, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return store.ErrNotInteger
	}
	stop, err := strconv.Atoi(string(args[3]))
	if err != nil {
		return store.ErrNotInteger
	}
	vals, err := d.Keyspace.RangeLocked(string(args[1]), start, stop)
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if err := e.ArrayHeader(len(vals)); err != nil {
			return err
		}
		for _, v := range vals {
			if err := e.BulkString(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// cmdBLPopLocked runs BLPOP/BRPOP inside EXEC. A transaction's batch runs
// under one continuously held keyspace lock, so it can never park a
// waiter without releasing that lock first; like real Redis, a blocking
// pop queued inside MULTI degrades to a single non-blocking attempt.
func (d *Dispatcher) cmdBLPopLocked(s *Session, args [][]byte) error {
	if len(args) < 3 {
		return wrongNumArgs("blpop")
	}
	left := strings.EqualFold(string(args[0]), "BLPOP")
	keys := args[1 : len(args)-1]
	for _, k := range keys {
		v := d.Keyspace.PopLocked(string(k), left)
		if v != nil {
			return s.lockedEncoder(func(e *resp.Encoder) error {
				if err := e.ArrayHeader(2); err != nil {
					return err
				}
				if err := e.BulkString(k); err != nil {
					return err
				}
				return e.BulkString(v)
			})
		}
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.NullArray() })
}

func (d *Dispatcher) cmdXAddLocked(s *Session, args [][]byte) error {
	if len(args) < 5 || (len(args)-3)%2 != 0 {
		return wrongNumArgs("xadd")
	}
	key := string(args[1])
	rawID := string(args[2])
	fields := make([]store.Field, 0, (len(args)-3)/2)
	for i := 3; i+1 < len(args); i += 2 {
		fields = append(fields, store.Field{Name: string(args[i]), Value: string(args[i+1])})
	}
	id, err := d.Keyspace.XAddLocked(key, rawID, fields, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	for d.Blocking.Deliver(key, id) {
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.BulkStringFrom(id.String()) })
}

func (d *Dispatcher) cmdXRangeLocked(s *Session, args [][]byte) error {
	if len(args) != 4 {
		return wrongNumArgs("xrange")
	}
	start, err := parseRangeID(string(args[2]), store.StreamID{})
	if err != nil {
		return err
	}
	end, err := parseRangeID(string(args[3]), store.StreamID{Ms: 1<<63 - 1, Seq: 1<<63 - 1})
	if err != nil {
		return err
	}
	entries, err := d.Keyspace.XRangeLocked(key(args), start, end)
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return writeStreamEntries(e, entries) })
}

// cmdXReadLocked runs XREAD inside EXEC: like cmdBLPopLocked, a BLOCK
// argument is honored only as far as an immediate poll allows, since the
// batch can't release the keyspace lock to park.
func (d *Dispatcher) cmdXReadLocked(s *Session, args [][]byte) error {
	i := 1
	if i < len(args) && strings.EqualFold(string(args[i]), "BLOCK") {
		i += 2
	}
	if i >= len(args) || !strings.EqualFold(string(args[i]), "STREAMS") {
		return wrongNumArgs("xread")
	}
	i++
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return wrongNumArgs("xread")
	}
	n := len(rest) / 2
	keys := make([]string, n)
	ids := make([]store.StreamID, n)
	for j := 0; j < n; j++ {
		keys[j] = string(rest[j])
		raw := string(rest[n+j])
		if raw == "$" {
			ids[j] = d.Keyspace.StreamLastIDLocked(keys[j])
			continue
		}
		ms, seq, _, err := store.ParseStreamID(raw, false)
		if err != nil {
			return err
		}
		ids[j] = store.StreamID{Ms: ms, Seq: seq}
	}

	var results []xreadResult
	for i, k := range keys {
		entries := d.Keyspace.StreamEntriesAfterLocked(k, ids[i])
		if len(entries) > 0 {
			results = append(results, xreadResult{key: k, entries: entries})
		}
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if len(results) == 0 {
			return e.NullArray()
		}
		if err := e.ArrayHeader(len(results)); err != nil {
			return err
		}
		for _, r := range results {
			if err := e.ArrayHeader(2); err != nil {
				return err
			}
			if err := e.BulkStringFrom(r.key); err != nil {
				return err
			}
			if err := writeStreamEntries(e, r.entries); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Dispatcher) cmdZAddLocked(s *Session, args [][]byte) error {
	if len(args) < 4 || (len(args)-2)%2 != 0 {
		return wrongNumArgs("zadd")
	}
	pairs := make([]struct {
		Score  float64
		Member string
	}, 0, (len(args)-2)/2)
	for i := 2; i+1 < len(args); i += 2 {
		score, err := strconv.ParseFloat(string(args[i]), 64)
		if err != nil {
			return store.ErrNotInteger
		}
		pairs = append(pairs, struct {
			Score  float64
			Member string
		}{Score: score, Member: string(args[i+1])})
	}
	n, err := d.Keyspace.ZAddLocked(string(args[1]), pairs)
	if err != nil {
		return err
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdZScoreLocked(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("zscore")
	}
	score, ok, err := d.Keyspace.ZScoreLocked(string(args[1]), string(args[2]))
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if !ok {
			return e.NullBulk()
		}
		return e.BulkStringFrom(strconv.FormatFloat(score, 'f', -1, 64))
	})
}

func (d *Dispatcher) cmdZRankLocked(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("zrank")
	}
	rank, ok, err := d.Keyspace.ZRankLocked(string(args[1]), string(args[2]))
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if !ok {
			return e.NullBulk()
		}
		return e.Integer(int64(rank))
	})
}

func (d *Dispatcher) cmdZCardLocked(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("zcard")
	}
	n, err := d.Keyspace.ZCardLocked(string(args[1]))
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdZRangeLocked(s *Session, args [][]byte) error {
	if len(args) != 4 {
		return wrongNumArgs("zrange")
	}
	start, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return store.ErrNotInteger
	}
	stop, err := strconv.Atoi(string(args[3]))
	if err != nil {
		return store.ErrNotInteger
	}
	members, err := d.Keyspace.ZRangeLocked(string(args[1]), start, stop)
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if err := e.ArrayHeader(len(members)); err != nil {
			return err
		}
		for _, m := range members {
			if err := e.BulkStringFrom(m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Dispatcher) cmdZRemLocked(s *Session, args [][]byte) error {
	if len(args) < 3 {
		return wrongNumArgs("zrem")
	}
	members := make([]string, len(args)-2)
	for i, m := range args[2:] {
		members[i] = string(m)
	}
	n, err := d.Keyspace.ZRemLocked(string(args[1]), members...)
	if err != nil {
		return err
	}
	if n > 0 {
		d.propagate(args)
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}
