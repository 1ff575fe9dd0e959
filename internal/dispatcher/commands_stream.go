package dispatcher

import (
	"strconv"
	"strings"
	"time"

	"redikv/internal/resp"
	"redikv/internal/store"
)

func (d *Dispatcher) cmdXAdd(s *Session, args [][]byte) error {
	if len(args) < 5 || (len(args)-3)%2 != 0 {
		return wrongNumArgs("xadd")
	}
	key := string(args[1])
	rawID := string(args[2])
	fields := make([]store.Field, 0, (len(args)-3)/2)
	for i := 3; i+1 < len(args); i += 2 {
		fields = append(fields, store.Field{Name: string(args[i]), Value: string(args[i+1])})
	}
	id, err := d.Keyspace.XAdd(key, rawID, fields, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	for d.Blocking.Deliver(key, id) {
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.BulkStringFrom(id.String()) })
}

func (d *Dispatcher) cmdXRange(s *Session, args [][]byte) error {
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
	entries, err := d.Keyspace.XRange(key(args), start, end)
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return writeStreamEntries(e, entries) })
}

func key(args [][]byte) string { return string(args[1]) }

func parseRangeID(s string, wildcard store.StreamID) (store.StreamID, error) {
	if s == "-" {
		return store.StreamID{}, nil
	}
	if s == "+" {
		return store.StreamID{Ms: 1<<63 - 1, Seq: 1<<63 - 1}, nil
	}
	ms, seq, seqWild, err := store.ParseStreamID(s, true)
	if err != nil {
		return store.StreamID{}, err
	}
	if seqWild {
		seq = wildcard.Seq
	}
	return store.StreamID{Ms: ms, Seq: seq}, nil
}

func writeStreamEntries(e *resp.Encoder, entries []store.StreamEntry) error {
	if err := e.ArrayHeader(len(entries)); err != nil {
		return err
	}
	for _, se := range entries {
		if err := e.ArrayHeader(2); err != nil {
			return err
		}
		if err := e.BulkStringFrom(se.ID.String()); err != nil {
			return err
		}
		if err := e.ArrayHeader(len(se.Fields) * 2); err != nil {
			return err
		}
		for _, f := range se.Fields {
			if err := e.BulkStringFrom(f.Name); err != nil {
				return err
			}
			if err := e.BulkStringFrom(f.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// cmdXRead implements XREAD [BLOCK ms] STREAMS key... id..., per spec.md
// §4.5: each key's "$" resolves to its current last id at call time, then
// (if BLOCK was given and nothing is immediately available) the reader
// parks on every listed key until a new entry arrives on any of them or
// the timeout elapses.
func (d *Dispatcher) cmdXRead(s *Session, args [][]byte) error {
	blockMs := -1
	i := 1
	if i < len(args) && strings.EqualFold(string(args[i]), "BLOCK") {
		ms, err := strconv.Atoi(string(args[i+1]))
		if err != nil {
			return store.ErrNotInteger
		}
		blockMs = ms
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
			ids[j] = d.Keyspace.StreamLastID(keys[j])
			continue
		}
		ms, seq, _, err := store.ParseStreamID(raw, false)
		if err != nil {
			return err
		}
		ids[j] = store.StreamID{Ms: ms, Seq: seq}
	}

	results := d.pollStreams(keys, ids)
	if len(results) == 0 && blockMs >= 0 {
		timeout := time.Duration(blockMs) * time.Millisecond
		if _, _, ok := d.waitAnyKey(keys, timeout); ok {
			// re-poll every watched key to pick up everything new, not
			// just the one that woke us
			results = d.pollStreams(keys, ids)
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

type xreadResult struct {
	key     string
	entries []store.StreamEntry
}

func (d *Dispatcher) pollStreams(keys []string, after []store.StreamID) []xreadResult {
	var out []xreadResult
	for i, k := range keys {
		entries := d.Keyspace.StreamEntriesAfter(k, after[i])
		if len(entries) > 0 {
			out = append(out, xreadResult{key: k, entries: entries})
		}
	}
	return out
}
