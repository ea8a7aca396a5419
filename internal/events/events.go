// Package events broadcasts cart state changes to in-process subscribers.
//
// Delivery is fire-and-forget: there is no queue and no replay, so a
// subscriber registered after an emission never sees it.
package events

import (
	"sync"

	"cartsync/internal/model"
)

// Event names.
const (
	CartUpdated = "cart/updated" // payload: *model.Cart
	CartInit    = "cart/init"    // no payload
)

// Event is one emission.
type Event struct {
	Name    string
	Payload any
}

// Cart returns the payload of a CartUpdated event, or nil.
func (e Event) Cart() *model.Cart {
	c, _ := e.Payload.(*model.Cart)
	return c
}

// Handler receives events synchronously on the emitting goroutine.
type Handler func(Event)

// Bus is a named-event broadcaster. The zero value is ready to use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn for events called name. The returned function
// removes the subscription; calling it more than once is harmless.
func (b *Bus) Subscribe(name string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[string]map[int]Handler)
	}
	if b.subs[name] == nil {
		b.subs[name] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[name][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[name], id)
	}
}

// SubscribeChan forwards events called name to ch without blocking. When ch
// is full the event is dropped for this subscriber.
func (b *Bus) SubscribeChan(name string, ch chan<- Event) (unsubscribe func()) {
	return b.Subscribe(name, func(e Event) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Emit delivers an event to every current subscriber of name.
func (b *Bus) Emit(name string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[name]))
	for _, fn := range b.subs[name] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	e := Event{Name: name, Payload: payload}
	for _, fn := range handlers {
		fn(e)
	}
}

// Subscribers returns the number of handlers registered for name.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
