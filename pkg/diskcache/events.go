package diskcache

import "sync"

// EventType identifies a cache event.
type EventType string

// EventCacheCleared is emitted exactly once per completed clear of a
// region, after the region is empty on disk.
const EventCacheCleared EventType = "cache_cleared"

// Event is a cache notification.
type Event struct {
	Type   EventType
	Region Region
}

// EventBus delivers cache events to registered subscribers. It is owned
// by the Cache that created it and shares its lifetime; there is no
// process-global bus.
type EventBus struct {
	mu   sync.RWMutex
	subs []func(Event)
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a callback for all future events. Callbacks run
// synchronously on the publishing goroutine and must not call back into
// the cache's mutating operations.
func (b *EventBus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers an event to every subscriber, synchronously, in
// subscription order.
func (b *EventBus) Publish(evt Event) {
	b.mu.RLock()
	subs := make([]func(Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(evt)
	}
}
