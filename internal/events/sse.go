package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// The SSE handler and the console both consume events from a select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}

// SubscribeAll subscribes ch to every event type and returns one function
// that removes all of the subscriptions.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[StreamStateChangedEvent](bus, ch),
		SubscribeToChannel[StreamStartFailedEvent](bus, ch),
		SubscribeToChannel[StreamOutputEvent](bus, ch),
		SubscribeToChannel[JobProgressEvent](bus, ch),
		SubscribeToChannel[JobLogEvent](bus, ch),
		SubscribeToChannel[JobCompletedEvent](bus, ch),
		SubscribeToChannel[JobAbortedEvent](bus, ch),
		SubscribeToChannel[JobFailedEvent](bus, ch),
		SubscribeToChannel[SourcesChangedEvent](bus, ch),
		SubscribeToChannel[LogEntryEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
