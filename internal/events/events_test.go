package events

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus(testLogger())
	var received Event
	bus.Subscribe(FrameReceived, func(e Event) {
		received = e
	})

	bus.Publish(Event{
		Type: FrameReceived,
		Data: map[string]string{"len": "12"},
	})

	if received.Type != FrameReceived {
		t.Fatalf("expected %s, got %s", FrameReceived, received.Type)
	}
	if received.Data["len"] != "12" {
		t.Fatalf("expected len=12, got %s", received.Data["len"])
	}
	if received.Timestamp.IsZero() {
		t.Fatal("expected non-zero timestamp")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus(testLogger())
	var count int
	bus.Subscribe(ResyncRejected, func(e Event) { count++ })
	bus.Subscribe(ResyncRejected, func(e Event) { count++ })
	bus.Subscribe(ResyncRejected, func(e Event) { count++ })

	bus.Publish(Event{Type: ResyncRejected})

	if count != 3 {
		t.Fatalf("expected 3 notifications, got %d", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	var count int
	id := bus.Subscribe(BufferOverrun, func(e Event) { count++ })

	bus.Publish(Event{Type: BufferOverrun})
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}

	bus.Unsubscribe(id)
	bus.Publish(Event{Type: BufferOverrun})
	if count != 1 {
		t.Fatalf("expected 1 after unsubscribe, got %d", count)
	}
}

func TestUnsubscribeNonexistent(t *testing.T) {
	bus := NewBus(testLogger())
	// Should not panic.
	bus.Unsubscribe(9999)
}

func TestPanicRecovery(t *testing.T) {
	bus := NewBus(testLogger())
	var afterPanic bool

	bus.Subscribe(ResyncRejected, func(e Event) {
		panic("test panic")
	})
	bus.Subscribe(ResyncRejected, func(e Event) {
		afterPanic = true
	})

	bus.Publish(Event{Type: ResyncRejected})

	if !afterPanic {
		t.Fatal("handler after panic was not called")
	}
}

func TestNoSubscribersNoAlloc(t *testing.T) {
	bus := NewBus(testLogger())

	// Publish to an event type with no subscribers.
	// Should return immediately without allocating.
	bus.Publish(Event{Type: FrameReceived})
	// If we get here without panic, the test passes.
}

func TestDifferentEventTypes(t *testing.T) {
	bus := NewBus(testLogger())
	var receivedCount, droppedCount int

	bus.Subscribe(FrameReceived, func(e Event) { receivedCount++ })
	bus.Subscribe(BufferDropped, func(e Event) { droppedCount++ })

	bus.Publish(Event{Type: FrameReceived})
	bus.Publish(Event{Type: FrameReceived})
	bus.Publish(Event{Type: BufferDropped})

	if receivedCount != 2 {
		t.Fatalf("expected 2 received events, got %d", receivedCount)
	}
	if droppedCount != 1 {
		t.Fatalf("expected 1 dropped event, got %d", droppedCount)
	}
}

func TestOrderedDelivery(t *testing.T) {
	bus := NewBus(testLogger())
	var order []int

	for i := range 1000 {
		bus.Subscribe(FrameReceived, func(e Event) {
			order = append(order, i)
		})
	}

	bus.Publish(Event{Type: FrameReceived})

	if len(order) != 1000 {
		t.Fatalf("expected 1000, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("out of order at index %d: got %d", i, v)
		}
	}
}

func TestConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	var wg sync.WaitGroup

	// Concurrent subscribe/unsubscribe from multiple goroutines.
	for range 50 {
		wg.Go(func() {
			id := bus.Subscribe(FrameReceived, func(e Event) {})
			bus.Publish(Event{Type: FrameReceived})
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()
}

func TestSubscriberCount(t *testing.T) {
	bus := NewBus(testLogger())
	if bus.SubscriberCount(FrameReceived) != 0 {
		t.Fatal("expected 0 subscribers")
	}

	id1 := bus.Subscribe(FrameReceived, func(e Event) {})
	id2 := bus.Subscribe(FrameReceived, func(e Event) {})
	if bus.SubscriberCount(FrameReceived) != 2 {
		t.Fatalf("expected 2, got %d", bus.SubscriberCount(FrameReceived))
	}

	bus.Unsubscribe(id1)
	if bus.SubscriberCount(FrameReceived) != 1 {
		t.Fatalf("expected 1, got %d", bus.SubscriberCount(FrameReceived))
	}

	bus.Unsubscribe(id2)
	if bus.SubscriberCount(FrameReceived) != 0 {
		t.Fatalf("expected 0, got %d", bus.SubscriberCount(FrameReceived))
	}
}

func TestAllSubscriberSeesEveryType(t *testing.T) {
	bus := NewBus(testLogger())
	var seen []EventType
	bus.Subscribe(All, func(e Event) { seen = append(seen, e.Type) })

	for _, et := range Types {
		bus.Publish(Event{Type: et})
	}

	if len(seen) != len(Types) {
		t.Fatalf("wildcard subscriber saw %d events, want %d", len(seen), len(Types))
	}
	for i, et := range Types {
		if seen[i] != et {
			t.Errorf("event %d = %s, want %s", i, seen[i], et)
		}
	}
}

func TestTypedHandlersRunBeforeWildcard(t *testing.T) {
	bus := NewBus(testLogger())
	var order []string
	bus.Subscribe(All, func(e Event) { order = append(order, "all") })
	bus.Subscribe(BufferOverrun, func(e Event) { order = append(order, "typed") })

	bus.Publish(Event{Type: BufferOverrun})

	if len(order) != 2 || order[0] != "typed" || order[1] != "all" {
		t.Fatalf("order = %v, want [typed all]", order)
	}
}

func TestParseEventType(t *testing.T) {
	et, err := ParseEventType("BUFFER_OVERRUN")
	if err != nil || et != BufferOverrun {
		t.Fatalf("ParseEventType = %q, %v", et, err)
	}
	if _, err := ParseEventType("PROCESS_STATE_FATAL"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if _, err := ParseEventType("*"); err == nil {
		t.Fatal("the wildcard is not a concrete event type")
	}
}

func TestTickerCadence(t *testing.T) {
	bus := NewBus(testLogger())
	var mu sync.Mutex
	var seen []EventType
	bus.Subscribe(All, func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	ticker := newTicker(bus, time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 14 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	ticker.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 14 {
		t.Fatalf("only %d ticks", len(seen))
	}
	// Twelve TICK_5, then TICK_60 for the same instant.
	for i, et := range seen[:13] {
		want := Tick5
		if i == 12 {
			want = Tick60
		}
		if et != want {
			t.Fatalf("tick %d = %s, want %s (%v)", i, et, want, seen[:13])
		}
	}
}

func TestTickerStops(t *testing.T) {
	bus := NewBus(testLogger())
	var count atomic.Int64
	bus.Subscribe(Tick5, func(e Event) {
		count.Add(1)
	})

	ticker := newTicker(bus, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	ticker.Stop()

	before := count.Load()
	if before == 0 {
		t.Fatal("ticker never fired")
	}
	time.Sleep(20 * time.Millisecond)
	if count.Load() != before {
		t.Fatal("ticker continued after Stop()")
	}
}

func TestEventTimestampAutoSet(t *testing.T) {
	bus := NewBus(testLogger())
	var received Event
	bus.Subscribe(FrameReceived, func(e Event) { received = e })

	before := time.Now()
	bus.Publish(Event{Type: FrameReceived})

	if received.Timestamp.Before(before) {
		t.Fatal("timestamp should not be before publish time")
	}
}

func TestEventTimestampPreserved(t *testing.T) {
	bus := NewBus(testLogger())
	var received Event
	bus.Subscribe(FrameReceived, func(e Event) { received = e })

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bus.Publish(Event{Type: FrameReceived, Timestamp: ts})

	if !received.Timestamp.Equal(ts) {
		t.Fatalf("expected preserved timestamp, got %v", received.Timestamp)
	}
}
