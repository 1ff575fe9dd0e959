package dispatcher

import (
	"strconv"
	"strings"
	"time"

	"redikv/internal/resp"
	"redikv/internal/store"
)

func (d *Dispatcher) cmdPush(s *Session, args [][]byte) error {
	if len(args) < 3 {
		return wrongNumArgs("push")
	}
	key := string(args[1])
	left := strings.EqualFold(string(args[0]), "LPUSH")

	// Push and the subsequent waiter hand-off happen under one held K
	// critical section (K acquired before B, per spec.md §5's ordering),
	// so no other connection can observe or steal the pushed value
	// between the push and its delivery to an already-parked BLPOP.
	d.Keyspace.Lock()
	n, err := d.Keyspace.PushLocked(key, left, args[2:])
	if err == nil {
		for d.Blocking.FirstWaiter(key) != nil {
			v := d.Keyspace.PopLocked(key, left)
			if v == nil {
				break
			}
			if !d.Blocking.Deliver(key, v) {
				break
			}
		}
	}
	d.Keyspace.Unlock()
	if err != nil {
		return err
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdPop(s *Session, args [][]byte) error {
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
	vals, err := d.Keyspace.Pop(string(args[1]), left, count)
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

func (d *Dispatcher) cmdLLen(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("llen")
	}
	n, err := d.Keyspace.Len(string(args[1]))
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdLRange(s *Session, args [][]byte) error {
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
	vals, err := d.Keyspace.Range(string(args[1]), start, stop)
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

// cmdBLPop implements BLPOP/BRPOP key... timeout, per spec.md §4.5: try an
// immediate pop from each key in order, and if none has data, park a FIFO
// waiter on every listed key at once until the first one is satisfied or
// the timeout elapses.
func (d *Dispatcher) cmdBLPop(s *Session, args [][]byte) error {
	if len(args) < 3 {
		return wrongNumArgs("blpop")
	}
	left := strings.EqualFold(string(args[0]), "BLPOP")
	keys := make([]string, len(args)-2)
	for i, k := range args[1 : len(args)-1] {
		keys[i] = string(k)
	}
	timeoutSecs, err := strconv.ParseFloat(string(args[len(args)-1]), 64)
	if err != nil {
		return store.ErrNotInteger
	}

	for _, k := range keys {
		vals, _ := d.Keyspace.Pop(k, left, 1)
		if len(vals) > 0 {
			v := vals[0]
			return s.lockedEncoder(func(e *resp.Encoder) error {
				if err := e.ArrayHeader(2); err != nil {
					return err
				}
				if err := e.BulkStringFrom(k); err != nil {
					return err
				}
				return e.BulkString(v)
			})
		}
	}

	timeout := time.Duration(timeoutSecs * float64(time.Second))
	winner, result, ok := d.waitAnyKey(keys, timeout)
	return s.lockedEncoder(func(e *resp.Encoder) error {
		if !ok {
			return e.NullArray()
		}
		v, _ := result.([]byte)
		if err := e.ArrayHeader(2); err != nil {
			return err
		}
		if err := e.BulkStringFrom(winner); err != nil {
			return err
		}
		return e.BulkString(v)
	})
}
