package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New()
	received := make(chan Event, 1)
	bus.Subscribe(RunStateChanged, nil, func(e Event) { received <- e })

	bus.PublishData(RunStateChanged, "TELEOP")

	select {
	case e := <-received:
		if e.Data() != "TELEOP" {
			t.Errorf("Data() = %v, want TELEOP", e.Data())
		}
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestPublishToUnknownTypeIsNoop(t *testing.T) {
	bus := New()
	bus.PublishData("nothing.subscribes", 1) // must not panic or block
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0
	sub := bus.Subscribe(LogAppended, nil, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.PublishData(LogAppended, nil)
	time.Sleep(20 * time.Millisecond)

	bus.Unsubscribe(LogAppended, sub)
	bus.PublishData(LogAppended, nil)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("count = %d, want 1 (second publish should not be delivered)", count)
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		bus.Subscribe(TelemetryUpdated, nil, func(e Event) { wg.Done() })
	}
	bus.PublishData(TelemetryUpdated, []byte("devices"))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers were notified")
	}
}
