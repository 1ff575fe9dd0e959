package dispatcher

import (
	"strings"

	"redikv/internal/resp"
)

func (d *Dispatcher) cmdMulti(s *Session, args [][]byte) error {
	if err := s.Txn.Begin(); err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString("OK") })
}

func (d *Dispatcher) cmdDiscard(s *Session, args [][]byte) error {
	if err := s.Txn.Discard(); err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.SimpleString("OK") })
}

// cmdExec runs the queued batch and replies with one array holding each
// queued command's own reply, per spec.md §4.6. The whole batch runs
// under a single d.Keyspace.Lock()/Unlock() pair (spec.md §5: "a
// transaction's EXEC appears to execute as one atomic batch"), so no
// other connection's command can interleave between two commands of the
// same EXEC. Each queued command therefore runs through lockedTable's
// lock-free path rather than its self-locking table handler — calling a
// self-locking handler here would re-enter d.Keyspace's mutex and
// deadlock. Commands that don't touch the keyspace (PING, SUBSCRIBE,
// REPLCONF, ...) aren't in lockedTable and fall back to their normal
// handler, which never locks d.Keyspace itself.
func (d *Dispatcher) cmdExec(s *Session, args [][]byte) error {
	batch, err := s.Txn.BeginExec()
	if err != nil {
		return err
	}
	if err := s.lockedEncoder(func(e *resp.Encoder) error { return e.ArrayHeader(len(batch)) }); err != nil {
		return err
	}
	d.Keyspace.Lock()
	defer d.Keyspace.Unlock()
	for _, qc := range batch {
		name := strings.ToUpper(string(qc.Args[0]))
		if lh, ok := lockedTable[name]; ok {
			if err := lh(d, s, qc.Args); err != nil {
				_ = s.lockedEncoder(func(e *resp.Encoder) error { return e.Error(err.Error()) })
			}
			continue
		}
		h, ok := table[name]
		if !ok {
			_ = s.lockedEncoder(func(e *resp.Encoder) error {
				return e.Error("ERR unknown command '" + name + "'")
			})
			continue
		}
		if err := h(d, s, qc.Args); err != nil {
			_ = s.lockedEncoder(func(e *resp.Encoder) error { return e.Error(err.Error()) })
		}
	}
	return nil
}
