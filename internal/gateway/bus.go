package gateway

import (
	"sync"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// EventBus fans the machine's outbound event stream out to in-process
// subscribers. Subscribers are invoked sequentially in subscription
// order, and publishes are serialized, so every subscriber observes the
// same total event order the machine emitted.
//
// Satisfies door.EventSink.
type EventBus struct {
	logger Logger

	mu   sync.RWMutex
	subs []subscription

	pubMu sync.Mutex
}

type subscription struct {
	name string
	fn   func(door.Event)
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{logger: noopLogger{}}
}

// SetLogger sets the logger for the bus. Call before use.
func (b *EventBus) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Subscribe registers a consumer. The name identifies it in logs when it
// misbehaves. Subscribe before the machine starts; late subscribers miss
// earlier events.
func (b *EventBus) Subscribe(name string, fn func(door.Event)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, fn: fn})
}

// Publish delivers one event to every subscriber in order. A panicking
// subscriber is logged and skipped; it cannot take down the control loop
// or starve the subscribers after it.
func (b *EventBus) Publish(ev door.Event) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, ev)
	}
}

func (b *EventBus) deliver(sub subscription, ev door.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"subscriber", sub.name,
				"event", ev.Type,
				"panic", r,
			)
		}
	}()
	sub.fn(ev)
}
