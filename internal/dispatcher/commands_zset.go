package dispatcher

import (
	"strconv"

	"redikv/internal/resp"
	"redikv/internal/store"
)

func (d *Dispatcher) cmdZAdd(s *Session, args [][]byte) error {
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
	n, err := d.Keyspace.ZAdd(string(args[1]), pairs)
	if err != nil {
		return err
	}
	d.propagate(args)
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdZScore(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("zscore")
	}
	score, ok, err := d.Keyspace.ZScore(string(args[1]), string(args[2]))
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

func (d *Dispatcher) cmdZRank(s *Session, args [][]byte) error {
	if len(args) != 3 {
		return wrongNumArgs("zrank")
	}
	rank, ok, err := d.Keyspace.ZRank(string(args[1]), string(args[2]))
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

func (d *Dispatcher) cmdZCard(s *Session, args [][]byte) error {
	if len(args) != 2 {
		return wrongNumArgs("zcard")
	}
	n, err := d.Keyspace.ZCard(string(args[1]))
	if err != nil {
		return err
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}

func (d *Dispatcher) cmdZRange(s *Session, args [][]byte) error {
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
	members, err := d.Keyspace.ZRange(string(args[1]), start, stop)
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

func (d *Dispatcher) cmdZRem(s *Session, args [][]byte) error {
	if len(args) < 3 {
		return wrongNumArgs("zrem")
	}
	members := make([]string, len(args)-2)
	for i, m := range args[2:] {
		members[i] = string(m)
	}
	n, err := d.Keyspace.ZRem(string(args[1]), members...)
	if err != nil {
		return err
	}
	if n > 0 {
		d.propagate(args)
	}
	return s.lockedEncoder(func(e *resp.Encoder) error { return e.Integer(int64(n)) })
}
