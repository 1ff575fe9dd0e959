package dispatcher

import (
	"strconv"
	"strings"
	"time"

	"redikv/internal/resp"
	"redikv/internal/store"
)

func (d *Dispatcher) cmdSet(s *Session, args [][]byte) error {
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
	d.Keyspace.Set(string(args[1]), args[2], ttl, hasTTL)
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString("OK") })
}

func (d *Dispatcher) cmdGet(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("get")
	}
	v, err := d.Keyspace.Get(string(args[1]))
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

func (d *Dispatcher) cmdDel(s *Session, args [][]byte) error {
	if len(args) < 2 {
		return wrongNumArgs("del")
	}
	keys := make([]string, len(args)-1)
	for i, k := range args[1:] {
		keys[i] = string(k)
	}
	n := d.Keyspace.Del(keys...)
	if n > 0 {
		d.propagate(args)
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdExists(s *Session, args [][]byte) error {
	if len(args) < 2 {
		return wrongNumArgs("exists")
	}
	n := 0
	for _, k := range args[1:] {
		if d.Keyspace.Exists(string(k)) {
			n++
		}
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdType(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("type")
	}
	t := d.Keyspace.Type(string(args[1]))
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString(t.String()) })
}

func (d *Dispatcher) cmdKeys(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("keys")
	}
	keys := d.Keyspace.Keys(string(args[1]))
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

func (d *Dispatcher) cmdIncr(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("incr")
	}
	n, err := d.Keyspace.Incr(string(args[1]), 1)
	if err != nil {
		return err
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(n) })
}

func (d *Dispatcher) cmdIncrBy(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("incrby")
	}
	by, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return store.ErrNotInteger
	}
	n, err := d.Keyspace.Incr(string(args[1]), by)
	if err != nil {
		return err
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(n) })
}
