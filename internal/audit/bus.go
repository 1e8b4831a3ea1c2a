package audit

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// subscriberBufferSize bounds each subscriber's channel. A subscriber that
// cannot keep up drops events rather than backpressuring the publisher —
// publish order is preserved per-subscriber, but subscribers never block
// one another.
const subscriberBufferSize = 1024

type subscriber struct {
	id      string
	ch      chan Event
	dropped atomic.Uint64
}

// Bus is the in-process audit fan-out. Every subscriber sees every
// published event, in publish order, independently of other subscribers'
// consumption speed.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	nextID      uint64
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The channel is closed when unsubscribe is called.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	b.nextID++
	id := "sub-" + strconv.FormatUint(b.nextID, 10)
	sub := &subscriber{id: id, ch: make(chan Event, subscriberBufferSize)}
	b.subscribers[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(s.ch)
		}
	}
	return sub.ch, unsubscribe
}

// Publish fans ev out to every current subscriber. A subscriber whose
// buffer is full has the event dropped and its counter incremented —
// never silently discarded without a trace.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// DroppedCounts reports, per subscriber id, how many events it has missed
// due to a full buffer.
func (b *Bus) DroppedCounts() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]uint64, len(b.subscribers))
	for id, sub := range b.subscribers {
		out[id] = sub.dropped.Load()
	}
	return out
}
