// Package eventbus is a narrow pub/sub fan-out adapted from the teacher's
// generic event_bus package. The surface here is fixed to the three event
// types the status/diagnostics websocket cares about; there is no
// terminal-driven dynamic subscribe/unsubscribe command surface since this
// repo carries no operator terminal.
package eventbus

// Fixed event types, all published by the Robot Session (Telemetry Cache
// stores, run-state changes, Log Tee appends) and consumed by the status
// surface's websocket hub.
const (
	TelemetryUpdated = "telemetry.updated"
	RunStateChanged  = "run_state.changed"
	LogAppended      = "log.appended"
)

// Subscriber identifies one registered handler. Comparable by ID so it
// can key a map even though the handler function itself cannot.
type Subscriber struct {
	ID string
}

// Handler processes one published event. Invoked in its own goroutine by
// Publish, so handlers must not assume ordering relative to each other.
type Handler func(Event)

// Event is anything with a type tag and an opaque data payload.
type Event interface {
	Type() string
	Data() interface{}
}

// DefaultEvent is the bus's own Event implementation.
type DefaultEvent struct {
	EventType string
	EventData interface{}
}

func NewEvent(eventType string, data interface{}) *DefaultEvent {
	return &DefaultEvent{EventType: eventType, EventData: data}
}

func (e *DefaultEvent) Type() string        { return e.EventType }
func (e *DefaultEvent) Data() interface{}   { return e.EventData }
