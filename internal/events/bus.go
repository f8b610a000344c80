package events

import (
	"sync"
	"sync/atomic"
)

// Bus is a lightweight pub/sub broker using channels. Slow subscribers never
// block publishers; overflowing payloads are dropped and counted instead.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan any
	dropped uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event and returns the channel and an
// unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fan-outs the payload to subscribers without blocking the caller.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

// Dropped reports how many payloads were discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}
