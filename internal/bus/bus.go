package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus is the dispatch boundary between the sync engine and the UI layer:
// an in-process publish/subscribe bus with namespace-prefix filtering.
// Publishing never blocks; a subscriber that cannot keep up loses events
// rather than stalling the engine.
type Bus struct {
	mu    sync.RWMutex
	subs  map[int]*subscription
	next  int
	drops atomic.Uint64
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of event.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				b.drops.Add(1)
			}
		}
	}
}

// Emit publishes an event of the given kind stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Drops reports how many events were discarded because a subscriber's
// buffer was full.
func (b *Bus) Drops() uint64 {
	return b.drops.Load()
}
