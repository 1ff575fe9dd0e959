package store

import "sort"

// zmember is one (member, score) pair held in score order.
type zmember struct {
	member string
	score  float64
}

// ZSet is the sorted-set payload: a member->score map plus a slice kept
// sorted by (score, member-lex) for O(log n) rank queries, per the data
// model's §9 suggested refinement over dict+sort.
type ZSet struct {
	byMember map[string]float64
	ordered  []zmember
}

func newZSet() *ZSet {
	return &ZSet{byMember: make(map[string]float64)}
}

func less(a, b zmember) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

// Add inserts or updates a member's score, keeping `ordered` sorted.
func (z *ZSet) Add(member string, score float64) {
	if old, ok := z.byMember[member]; ok {
		z.removeOrdered(zmember{member, old})
	}
	z.byMember[member] = score
	z.insertOrdered(zmember{member, score})
}

func (z *ZSet) insertOrdered(m zmember) {
	i := sort.Search(len(z.ordered), func(i int) bool { return !less(z.ordered[i], m) })
	z.ordered = append(z.ordered, zmember{})
	copy(z.ordered[i+1:], z.ordered[i:])
	z.ordered[i] = m
}

func (z *ZSet) removeOrdered(m zmember) {
	i := sort.Search(len(z.ordered), func(i int) bool { return !less(z.ordered[i], m) })
	if i < len(z.ordered) && z.ordered[i] == m {
		z.ordered = append(z.ordered[:i], z.ordered[i+1:]...)
	}
}

// Remove deletes member, reporting whether it was present.
func (z *ZSet) Remove(member string) bool {
	score, ok := z.byMember[member]
	if !ok {
		return false
	}
	delete(z.byMember, member)
	z.removeOrdered(zmember{member, score})
	return true
}

// Score returns a member's score.
func (z *ZSet) Score(member string) (float64, bool) {
	s, ok := z.byMember[member]
	return s, ok
}

// Rank returns a member's zero-based position in (score, member) order.
func (z *ZSet) Rank(member string) (int, bool) {
	score, ok := z.byMember[member]
	if !ok {
		return 0, false
	}
	target := zmember{member, score}
	i := sort.Search(len(z.ordered), func(i int) bool { return !less(z.ordered[i], target) })
	if i < len(z.ordered) && z.ordered[i] == target {
		return i, true
	}
	return 0, false
}

// Card reports the member count.
func (z *ZSet) Card() int { return len(z.ordered) }

// Range implements ZRANGE k start stop, with the same negative-index
// clamping rules as LRANGE.
func (z *ZSet) Range(start, stop int) []string {
	n := len(z.ordered)
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []string{}
	}
	out := make([]string, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, z.ordered[i].member)
	}
	return out
}

// --- Keyspace-level sorted-set commands ---

// ZAdd implements ZADD k score member [score member ...], returning the
// count of newly-added (not updated) members.
func (ks *Keyspace) ZAdd(key string, pairs []struct {
	Score  float64
	Member string
}) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZAddLocked(key, pairs)
}

// ZAddLocked is ZAdd under an already-held ks.mu.
func (ks *Keyspace) ZAddLocked(key string, pairs []struct {
	Score  float64
	Member string
}) (int, error) {
	e := ks.getLocked(key)
	if e == nil {
		e = &Entry{Kind: KindZSet, ZSet: newZSet()}
		ks.data[key] = e
	} else if e.Kind != KindZSet {
		return 0, WrongTypeError{}
	}
	added := 0
	for _, p := range pairs {
		if _, existed := e.ZSet.Score(p.Member); !existed {
			added++
		}
		e.ZSet.Add(p.Member, p.Score)
	}
	return added, nil
}

// ZScore implements ZSCORE k member.
func (ks *Keyspace) ZScore(key, member string) (float64, bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZScoreLocked(key, member)
}

// ZScoreLocked is ZScore under an already-held ks.mu.
func (ks *Keyspace) ZScoreLocked(key, member string) (float64, bool, error) {
	e := ks.getLocked(key)
	if e == nil {
		return 0, false, nil
	}
	if e.Kind != KindZSet {
		return 0, false, WrongTypeError{}
	}
	s, ok := e.ZSet.Score(member)
	return s, ok, nil
}

// ZRank implements ZRANK k member.
func (ks *Keyspace) ZRank(key, member string) (int, bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZRankLocked(key, member)
}

// ZRankLocked is ZRank under an already-held ks.mu.
func (ks *Keyspace) ZRankLocked(key, member string) (int, bool, error) {
	e := ks.getLocked(key)
	if e == nil {
		return 0, false, nil
	}
	if e.Kind != KindZSet {
		return 0, false, WrongTypeError{}
	}
	r, ok := e.ZSet.Rank(member)
	return r, ok, nil
}

// ZCard implements ZCARD k.
func (ks *Keyspace) ZCard(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZCardLocked(key)
}

// ZCardLocked is ZCard under an already-held ks.mu.
func (ks *Keyspace) ZCardLocked(key string) (int, error) {
	e := ks.getLocked(key)
	if e == nil {
		return 0, nil
	}
	if e.Kind != KindZSet {
		return 0, WrongTypeError{}
	}
	return e.ZSet.Card(), nil
}

// ZRange implements ZRANGE k start stop.
func (ks *Keyspace) ZRange(key string, start, stop int) ([]string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZRangeLocked(key, start, stop)
}

// ZRangeLocked is ZRange under an already-held ks.mu.
func (ks *Keyspace) ZRangeLocked(key string, start, stop int) ([]string, error) {
	e := ks.getLocked(key)
	if e == nil {
		return []string{}, nil
	}
	if e.Kind != KindZSet {
		return nil, WrongTypeError{}
	}
	return e.ZSet.Range(start, stop), nil
}

// ZRem implements ZREM k member....
func (ks *Keyspace) ZRem(key string, members ...string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZRemLocked(key, members...)
}

// ZRemLocked is ZRem under an already-held ks.mu.
func (ks *Keyspace) ZRemLocked(key string, members ...string) (int, error) {
	e := ks.getLocked(key)
	if e == nil {
		return 0, nil
	}
	if e.Kind != KindZSet {
		return 0, WrongTypeError{}
	}
	n := 0
	for _, m := range members {
		if e.ZSet.Remove(m) {
			n++
		}
	}
	if e.ZSet.Card() == 0 {
		delete(ks.data, key)
	}
	return n, nil
}
