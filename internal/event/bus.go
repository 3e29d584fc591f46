package event

import (
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
)

// Handler is a function that handles an event.
type Handler func(Event)

// PanicHandler receives a recovered handler panic with its stack.
type PanicHandler func(eventType string, recovered any, stack []byte)

// Wildcard is the subscription key that receives every event.
const Wildcard = "*"

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub event bus. Handlers run on the publisher's
// goroutine, in registration order, specific subscribers before wildcard
// subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]subscription
	nextID  atomic.Uint64
	onPanic PanicHandler
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithPanicHandler replaces the default panic reporter, which writes to the
// standard logger.
func WithPanicHandler(h PanicHandler) BusOption {
	return func(b *Bus) {
		if h != nil {
			b.onPanic = h
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs: make(map[string][]subscription),
		onPanic: func(eventType string, r any, stack []byte) {
			log.Printf("ERROR: event handler panicked for %s: %v\n%s", eventType, r, stack)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one event type and returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(Wildcard, handler)
}

// Unsubscribe removes a subscription. It reports whether the id was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subs {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			kept := make([]subscription, 0, len(subs)-1)
			kept = append(kept, subs[:i]...)
			b.subs[eventType] = append(kept, subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers e to its subscribers. A panicking handler is reported
// and does not stop delivery to the rest. Handlers may publish or
// (un)subscribe re-entrantly.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	specific := b.subs[e.EventType()]
	wildcard := b.subs[Wildcard]
	targets := make([]subscription, 0, len(specific)+len(wildcard))
	targets = append(targets, specific...)
	targets = append(targets, wildcard...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub.handler, e)
	}
}

func (b *Bus) deliver(handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.onPanic(e.EventType(), r, debug.Stack())
		}
	}()
	handler(e)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

// String summarises the bus for debugging.
func (b *Bus) String() string {
	return fmt.Sprintf("event.Bus{subscriptions: %d}", b.SubscriptionCount())
}
