// Package eventbus implements the lossy broadcast channel of typed events
// described in spec.md §4.2: every independent subscriber gets its own
// bounded queue; a slow subscriber only drops its own oldest undelivered
// events, never affects other subscribers, and never blocks Publish.
//
// The shape follows modules/framebus/internal/bus/bus.go (subscriber map
// guarded by a mutex, per-subscriber channel), generalized from
// framebus's raw frame bytes to the typed Event variant this spec needs.
// Delivery itself follows framebus's SubscribeDropOld path rather than
// its default DropNew one: spec.md §4.2 requires a full subscriber to
// lose its oldest undelivered event, not the incoming one, so Publish
// peeks-and-evicts the head of a full queue (a non-blocking receive)
// before enqueuing.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the bounded queue depth (K in spec.md §4.2) used when
// a subscriber does not request a specific capacity.
const DefaultCapacity = 32

// SubscriberStats tracks delivery outcomes for one subscriber.
type SubscriberStats struct {
	Delivered uint64
	Dropped   uint64
}

type subscriber struct {
	ch        chan Event
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Bus distributes Events to independent subscribers. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	closed      bool
	published   atomic.Uint64
}

// New creates an empty, open Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]*subscriber)}
}

// Subscription is a handle returned by Subscribe. Events arrives events
// published after the call to Subscribe; Unsubscribe releases the queue.
type Subscription struct {
	id     int
	Events <-chan Event
	bus    *Bus
	sub    *subscriber
}

// Unsubscribe removes the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Stats returns delivered/dropped counters for this subscription.
func (s *Subscription) Stats() SubscriberStats {
	return SubscriberStats{
		Delivered: s.sub.delivered.Load(),
		Dropped:   s.sub.dropped.Load(),
	}
}

// Subscribe registers a new subscriber with the given queue capacity (use
// DefaultCapacity if unsure) and returns a handle exposing its channel.
func (b *Bus) Subscribe(capacity int) *Subscription {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, capacity)}
	b.subscribers[id] = sub

	return &Subscription{id: id, Events: sub.ch, bus: b, sub: sub}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subscribers, id)
	b.mu.Unlock()

	close(sub.ch)
}

// Publish delivers ev to every current subscriber, non-blocking. A
// subscriber whose queue is full loses its oldest undelivered event, not
// ev itself (spec.md §4.2): the oldest buffered entry is evicted to make
// room, then ev is enqueued.
// Publish after Close is a no-op.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
			sub.delivered.Add(1)
		default:
			select {
			case <-sub.ch:
				sub.dropped.Add(1)
			default:
			}
			select {
			case sub.ch <- ev:
				sub.delivered.Add(1)
			default:
				sub.dropped.Add(1)
			}
		}
	}
}

// Close shuts down the bus: no further Publish takes effect, and every
// live subscriber's channel is closed so blocked receivers wake with
// ok=false.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Published returns the lifetime count of Publish calls that were not
// no-ops (i.e. occurred before Close).
func (b *Bus) Published() uint64 {
	return b.published.Load()
}
