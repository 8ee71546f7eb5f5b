// Package signal is the in-process notification bus between components that
// must not know about each other: producers publish, consumers subscribe.
package signal

import (
	"sync"
	"time"
)

type Kind int

const (
	// SessionRestored fires when the identity provider reports a session
	// after the gate was not ready or signed out.
	SessionRestored Kind = iota + 1
	// CheckoutCompleted fires after the cart was paid.
	CheckoutCompleted
	// BookingFormCleared fires after a booking draft was invalidated.
	BookingFormCleared
)

func (k Kind) String() string {
	switch k {
	case SessionRestored:
		return "sessionRestored"
	case CheckoutCompleted:
		return "checkoutCompleted"
	case BookingFormCleared:
		return "bookingFormCleared"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind   Kind
	UserID string
	// Scope narrows the event, e.g. the item type of a cleared form.
	Scope string
	// Origin identifies the publisher so it can ignore its own events.
	Origin string
	At     time.Time
}

type Handler func(Event)

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Kind]map[int]Handler
	order    map[Kind][]int
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Kind]map[int]Handler),
		order:    make(map[Kind][]int),
	}
}

// Subscribe registers fn for events of kind. The returned function removes
// the subscription and is safe to call more than once.
func (b *Bus) Subscribe(kind Kind, fn Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[int]Handler)
	}
	b.handlers[kind][id] = fn
	b.order[kind] = append(b.order[kind], id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.handlers[kind][id]; !ok {
			return
		}
		delete(b.handlers[kind], id)
		for i, existing := range b.order[kind] {
			if existing == id {
				b.order[kind] = append(b.order[kind][:i:i], b.order[kind][i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	var targets []Handler
	for _, id := range b.order[event.Kind] {
		if fn, ok := b.handlers[event.Kind][id]; ok {
			targets = append(targets, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(event)
	}
}
