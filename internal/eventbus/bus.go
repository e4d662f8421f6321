package eventbus

import (
	"sync"

	"github.com/Nat3z/Daybreak/internal/collections"
)

// Bus is a thread-safe pub/sub fan-out. Unlike the teacher's version
// (a SafeMap of event type to a SafeSet of subscribers, plus a second
// SafeMap from subscriber to handler) this keeps one SafeMap per event
// type mapping subscriber to handler directly, so a subscriber's handler
// is always registered in a single atomic Set rather than two separate
// maps that could fall out of step. The teacher's split storage allowed
// a subscribe/publish race where a handler could be looked up before its
// entry in the second map existed; collapsing subscription and handler
// storage into one map per event type removes that window, which
// matters now that Publish fans out to a live websocket hub instead of
// to terminal debug commands.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]*collections.SafeMap[Subscriber, Handler]
}

func New() *Bus {
	return &Bus{handlers: make(map[string]*collections.SafeMap[Subscriber, Handler])}
}

// Subscribe registers handler for eventType. Passing a nil subscriber
// mints a new one; the subscriber is returned either way so the caller
// can Unsubscribe later.
func (b *Bus) Subscribe(eventType string, sub *Subscriber, handler Handler) *Subscriber {
	if sub == nil {
		sub = NewSubscriber()
	}

	b.mu.Lock()
	m, ok := b.handlers[eventType]
	if !ok {
		m = collections.NewSafeMap[Subscriber, Handler]()
		b.handlers[eventType] = m
	}
	b.mu.Unlock()

	m.Set(*sub, handler)
	return sub
}

// Unsubscribe removes sub's handler for eventType. No-op if either is
// unknown.
func (b *Bus) Unsubscribe(eventType string, sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.RLock()
	m, ok := b.handlers[eventType]
	b.mu.RUnlock()
	if !ok {
		return
	}

	m.Delete(*sub)

	if m.IsEmpty() {
		b.mu.Lock()
		if m2, ok := b.handlers[eventType]; ok && m2.IsEmpty() {
			delete(b.handlers, eventType)
		}
		b.mu.Unlock()
	}
}

// Publish fans event out to every subscriber of its type, each in its
// own goroutine. No-op if there are no subscribers.
func (b *Bus) Publish(event Event) {
	if event == nil {
		return
	}
	b.mu.RLock()
	m, ok := b.handlers[event.Type()]
	b.mu.RUnlock()
	if !ok {
		return
	}

	for _, h := range m.Values() {
		go h(event)
	}
}

// PublishData wraps data in a DefaultEvent and publishes it.
func (b *Bus) PublishData(eventType string, data interface{}) {
	b.Publish(NewEvent(eventType, data))
}
