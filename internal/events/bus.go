package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Delivery is asynchronous; each subscriber receives events in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(RunStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type
	switch e := ev.(type) {
	case RunStartedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineProgressEvent:
		event.Publish(b.dispatcher, e)
	case OutputGrowthEvent:
		event.Publish(b.dispatcher, e)
	case RunFinishedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e RunFinishedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(RunStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineProgressEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputGrowthEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RunFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
