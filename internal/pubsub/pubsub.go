// Package pubsub implements the channel table for SUBSCRIBE/UNSUBSCRIBE/
// PUBLISH, per spec.md §4.7. Subscriber connections are referenced by
// handle, never by owning pointer, so the table and a connection's own
// subscription set never form a cycle of strong ownership (spec.md §9).
package pubsub

import "sync"

// Subscriber is the minimal handle a connection exposes to the hub: a
// way to push a frame to its socket and a stable identity for set
// membership.
type Subscriber interface {
	Push(channel string, payload []byte)
	ID() uint64
}

// Hub is the channel -> subscriber-set table, guarded by mu (= P).
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[uint64]Subscriber
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{channels: make(map[string]map[uint64]Subscriber)}
}

// Subscribe adds sub to channel's subscriber set, returning the total
// subscriber count for that channel after the add.
func (h *Hub) Subscribe(channel string, sub Subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[uint64]Subscriber)
		h.channels[channel] = set
	}
	set[sub.ID()] = sub
	return len(set)
}

// Unsubscribe removes sub from channel's subscriber set, returning the
// remaining subscriber count.
func (h *Hub) Unsubscribe(channel string, sub Subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channel]
	if !ok {
		return 0
	}
	delete(set, sub.ID())
	if len(set) == 0 {
		delete(h.channels, channel)
		return 0
	}
	return len(set)
}

// UnsubscribeAll removes sub from every channel it belongs to (connection
// close), returning the channels it was removed from.
func (h *Hub) UnsubscribeAll(sub Subscriber, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		set, ok := h.channels[ch]
		if !ok {
			continue
		}
		delete(set, sub.ID())
		if len(set) == 0 {
			delete(h.channels, ch)
		}
	}
}

// Publish delivers payload to every current subscriber of channel,
// returning the number of deliveries.
func (h *Hub) Publish(channel string, payload []byte) int {
	h.mu.RLock()
	set := h.channels[channel]
	subs := make([]Subscriber, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.Push(channel, payload)
	}
	return len(subs)
}
