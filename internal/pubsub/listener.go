package pubsub

import "context"

// ContinuousListener reads one subscription an event at a time, for loops
// that would otherwise select on the channel and ctx themselves.
type ContinuousListener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewContinuousListener subscribes to src until ctx ends.
func NewContinuousListener[T any](ctx context.Context, src Subscriber[T], types ...EventType) *ContinuousListener[T] {
	return &ContinuousListener[T]{
		ctx: ctx,
		ch:  src.Subscribe(ctx, types...),
	}
}

// Next blocks until the next event arrives.
// It returns false once the context is cancelled or the source is closed.
func (l *ContinuousListener[T]) Next() (Event[T], bool) {
	select {
	case <-l.ctx.Done():
		return Event[T]{}, false
	case event, ok := <-l.ch:
		return event, ok
	}
}
