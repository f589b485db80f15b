package events

import (
	"context"
	"sync"
)

// Broadcaster fans events out to in-process subscribers, typically the SSE
// stream of a connected host. Slow subscribers miss events.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

// NewBroadcaster returns a Broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan Event]struct{})}
}

// Subscribe returns an event channel and the function that releases it.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish offers evt to every subscriber without blocking.
func (b *Broadcaster) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- evt:
		default:
			// full, skip
		}
	}
	return nil
}

// Subscribers returns the number of attached hosts.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HasForeground is true while at least one host is subscribed.
func (b *Broadcaster) HasForeground() bool {
	return b.Subscribers() > 0
}
