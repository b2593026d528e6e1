package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the per-subscriber queue length used by NewBroker.
const DefaultBuffer = 64

// BrokerOption configures a Broker.
type BrokerOption func(*brokerOptions)

type brokerOptions struct {
	buffer int
	now    func() time.Time
}

// WithBuffer sets how many undelivered events each subscriber may queue
// before further events to it are dropped.
func WithBuffer(n int) BrokerOption {
	return func(o *brokerOptions) {
		if n >= 0 {
			o.buffer = n
		}
	}
}

// WithClock sets the source of event timestamps.
func WithClock(now func() time.Time) BrokerOption {
	return func(o *brokerOptions) { o.now = now }
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose queue is full misses the event, and the miss is counted.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[*subscriber[T]]struct{}
	closed  bool
	buffer  int
	now     func() time.Time
	dropped atomic.Uint64
}

type subscriber[T any] struct {
	ch    chan Event[T]
	types map[EventType]struct{}
	stop  func() bool
}

// wants reports whether the subscriber asked for t. No types means all.
func (s *subscriber[T]) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

var (
	_ Subscriber[struct{}] = (*Broker[struct{}])(nil)
	_ Publisher[struct{}]  = (*Broker[struct{}])(nil)
)

// NewBroker creates a broker.
func NewBroker[T any](opts ...BrokerOption) *Broker[T] {
	o := brokerOptions{buffer: DefaultBuffer, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker[T]{
		subs:   make(map[*subscriber[T]]struct{}),
		buffer: o.buffer,
		now:    o.now,
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The channel is closed when ctx ends or the
// broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, types ...EventType) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	s := &subscriber[T]{ch: make(chan Event[T], b.buffer)}
	if len(types) > 0 {
		s.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	b.subs[s] = struct{}{}
	s.stop = context.AfterFunc(ctx, func() { b.unsubscribe(s) })
	return s.ch
}

func (b *Broker[T]) unsubscribe(s *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Publish delivers an event to every interested subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	event := Event[T]{Type: eventType, Payload: payload, Timestamp: b.now()}
	for s := range b.subs {
		if !s.wants(eventType) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel and later publishes are ignored.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.stop()
		close(s.ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// queue was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
