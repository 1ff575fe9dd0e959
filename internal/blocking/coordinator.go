// Package blocking implements the FIFO waiter queues that coordinate
// BLPOP/XREAD BLOCK with the writers that can satisfy them, per spec.md
// §4.5. The coordinator mutex B is distinct from, and always acquired
// after, the keyspace mutex K (spec.md §5's acquisition order).
package blocking

import (
	"sync"
	"time"
)

// Waiter is a parked worker holding a single-shot result slot and the
// condition it sleeps on.
type Waiter struct {
	cond     *sync.Cond
	result   any
	filled   bool
	deadline time.Time // zero means no deadline
	hasDeadl bool
	done     bool // set on cancellation (connection closed)
}

// Coordinator holds one FIFO waiter queue per key, guarded by mu (= B).
type Coordinator struct {
	mu      sync.Mutex
	queues  map[string][]*Waiter
	nowFunc func() time.Time
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{queues: make(map[string][]*Waiter), nowFunc: time.Now}
}

// WithClock overrides the wall clock (test hook).
func (c *Coordinator) WithClock(now func() time.Time) { c.nowFunc = now }

// Enqueue registers a new waiter on key and returns it. Must be called
// with the keyspace mutex already released (coordinator acquires B after
// K, never holds both at once across a blocking wait).
func (c *Coordinator) Enqueue(key string, timeout time.Duration) *Waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &Waiter{cond: sync.NewCond(&c.mu)}
	if timeout > 0 {
		w.hasDeadl = true
		w.deadline = c.nowFunc().Add(timeout)
	}
	c.queues[key] = append(c.queues[key], w)
	return w
}

// Wait blocks until w is filled, cancelled, or its deadline passes.
// Returns (result, true) on delivery, (nil, false) on timeout/cancel.
func (c *Coordinator) Wait(key string, w *Waiter) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if w.filled {
			return w.result, true
		}
		if w.done {
			c.removeLocked(key, w)
			return nil, false
		}
		if w.hasDeadl {
			now := c.nowFunc()
			if !now.Before(w.deadline) {
				c.removeLocked(key, w)
				return nil, false
			}
			remaining := w.deadline.Sub(now)
			c.waitWithTimeout(w, remaining)
			continue
		}
		w.cond.Wait()
	}
}

// waitWithTimeout wakes the condition after d even absent a signal, so a
// deadline is always honored; it re-locks c.mu before returning (matching
// sync.Cond.Wait's contract of returning with the lock held).
func (c *Coordinator) waitWithTimeout(w *Waiter, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		c.mu.Lock()
		w.cond.Broadcast()
		c.mu.Unlock()
	})
	w.cond.Wait()
	timer.Stop()
}

func (c *Coordinator) removeLocked(key string, w *Waiter) {
	q := c.queues[key]
	for i, other := range q {
		if other == w {
			c.queues[key] = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(c.queues[key]) == 0 {
		delete(c.queues, key)
	}
}

// FirstWaiter reports the head waiter for key, if any, without removing
// it. Writers use this to check "is anyone already parked on this key"
// before deciding whether to hand a value straight to a waiter or leave it
// in the keyspace for a future reader.
func (c *Coordinator) FirstWaiter(key string) *Waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queues[key]
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// Deliver fills the head waiter on key with result, dequeues it, and
// wakes it. Reports whether a waiter was actually present. Callers
// (RPUSH/LPUSH/XADD) call this in a loop, after committing the mutation,
// while a waiter remains and the key still has something to give it.
func (c *Coordinator) Deliver(key string, result any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queues[key]
	if len(q) == 0 {
		return false
	}
	w := q[0]
	c.queues[key] = q[1:]
	if len(c.queues[key]) == 0 {
		delete(c.queues, key)
	}
	w.result = result
	w.filled = true
	w.cond.Broadcast()
	return true
}

// Cancel withdraws the single waiter w from key's queue and wakes it
// with no result; its Wait then reports (nil, false).
func (c *Coordinator) Cancel(key string, w *Waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.done = true
	w.cond.Broadcast()
	c.removeLocked(key, w)
}
