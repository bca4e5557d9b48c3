package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Now formats the current time the way every event timestamp is encoded.
func Now() string {
	return time.Now().Format(time.RFC3339)
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(JobLogEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStartFailedEvent:
		event.Publish(b.dispatcher, e)
	case StreamOutputEvent:
		event.Publish(b.dispatcher, e)
	case JobProgressEvent:
		event.Publish(b.dispatcher, e)
	case JobLogEvent:
		event.Publish(b.dispatcher, e)
	case JobCompletedEvent:
		event.Publish(b.dispatcher, e)
	case JobAbortedEvent:
		event.Publish(b.dispatcher, e)
	case JobFailedEvent:
		event.Publish(b.dispatcher, e)
	case SourcesChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e JobCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStartFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamOutputEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobProgressEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobLogEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobAbortedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SourcesChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
