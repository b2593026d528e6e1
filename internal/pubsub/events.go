// Package pubsub carries autosave signals from a session to any number of
// listeners.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

// Autosave signals. The first four request a workflow; the rest report one.
const (
	PushEvent                 EventType = "push"
	AppendEvent               EventType = "append"
	PersistEvent              EventType = "persist"
	UnloadEvent               EventType = "unload"
	PersistedEvent            EventType = "persisted"
	AppendCompletedEvent      EventType = "append-completed"
	AppendCompletedAsyncEvent EventType = "append-completed-async"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out filtered event channels. Sessions and brokers both
// implement it.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, types ...EventType) <-chan Event[T]
}

// Publisher publishes events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
