// Package eventbus is the single local delivery mechanism for
// cross-component signals. It replaces the dual live-event / persisted
// fallback paths with one channel whose consumption is idempotent: an
// event carrying a dedupe key already seen by the bus is dropped.
package eventbus

import (
	"sync"

	"go.uber.org/fx"
)

const (
	TopicInvoiceCreated   = "invoice.created"
	TopicDiscountsChanged = "discounts.changed"
	TopicSourceActivity   = "source.activity"
)

const (
	defaultSubscriberBuffer = 16
	dedupeWindow            = 256
)

// Event is one bus emission. DedupeKey, when set, is a composite key
// (for invoice creation: "<timestamp>-<invoiceNumber>") used to collapse
// duplicate observations of the same emission.
type Event struct {
	Topic     string
	DedupeKey string
	Payload   map[string]any
}

type Bus struct {
	mu     sync.Mutex
	topics map[string]map[uint64]chan Event
	nextID uint64

	seen      map[string]struct{}
	seenOrder []string
}

type Subscription struct {
	bus   *Bus
	topic string
	id    uint64
	ch    chan Event
	once  sync.Once
}

func New() *Bus {
	return &Bus{
		topics: make(map[string]map[uint64]chan Event),
		seen:   make(map[string]struct{}),
	}
}

// Publish delivers the event at most once to every currently-registered
// subscriber of its topic. Duplicate dedupe keys are dropped. Delivery
// is non-blocking; a subscriber with a full buffer misses the event.
func (b *Bus) Publish(event Event) {
	if b == nil || event.Topic == "" {
		return
	}

	b.mu.Lock()
	if event.DedupeKey != "" {
		if _, dup := b.seen[event.DedupeKey]; dup {
			b.mu.Unlock()
			return
		}
		b.remember(event.DedupeKey)
	}
	subs := make([]chan Event, 0, len(b.topics[event.Topic]))
	for _, ch := range b.topics[event.Topic] {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener for a topic and returns its
// subscription handle.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]chan Event)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, defaultSubscriberBuffer)
	b.topics[topic][id] = ch

	return &Subscription{bus: b, topic: topic, id: id, ch: ch}
}

// remember records a dedupe key, evicting the oldest beyond the window.
// Caller holds b.mu.
func (b *Bus) remember(key string) {
	b.seen[key] = struct{}{}
	b.seenOrder = append(b.seenOrder, key)
	if len(b.seenOrder) > dedupeWindow {
		oldest := b.seenOrder[0]
		b.seenOrder = b.seenOrder[1:]
		delete(b.seen, oldest)
	}
}

// C is the subscription's receive channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unregisters the subscription. Safe to call more than once. The
// channel is never closed: Publish snapshots subscriber channels outside
// the lock, so an in-flight delivery may still send after Close returns,
// and a closed channel would panic the publisher. The channel is simply
// dropped with the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs := s.bus.topics[s.topic]; subs != nil {
			delete(subs, s.id)
		}
		s.bus.mu.Unlock()
	})
}

// Module wires the process-local event bus.
var Module = fx.Module("eventbus",
	fx.Provide(New),
)
