// Package events provides a publish-subscribe event bus for pipeline and
// buffer notifications.
package events

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// EventType identifies a specific event category.
type EventType string

// Pipeline lifecycle events.
const (
	PipelineStarted EventType = "PIPELINE_STARTED"
	PipelineStopped EventType = "PIPELINE_STOPPED"
)

// Frame events.
const (
	FrameReceived EventType = "FRAME_RECEIVED"
	FrameOversize EventType = "FRAME_OVERSIZE"
)

// Buffer events. BufferOverrun reports stored bytes evicted by an
// overwriting write; BufferDropped reports incoming bytes a bounded write
// could not store.
const (
	BufferOverrun  EventType = "BUFFER_OVERRUN"
	BufferDropped  EventType = "BUFFER_DROPPED"
	ResyncRejected EventType = "RESYNC_REJECTED"
)

// Periodic tick events.
const (
	Tick5    EventType = "TICK_5"
	Tick60   EventType = "TICK_60"
	Tick3600 EventType = "TICK_3600"
)

// All subscribes a handler to every event type.
const All EventType = "*"

// Types lists every concrete event type.
var Types = []EventType{
	PipelineStarted, PipelineStopped,
	FrameReceived, FrameOversize,
	BufferOverrun, BufferDropped, ResyncRejected,
	Tick5, Tick60, Tick3600,
}

// ParseEventType validates an event type name.
func ParseEventType(s string) (EventType, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Event carries data from a published event.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// HandlerFunc processes an event.
type HandlerFunc func(Event)

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// Bus is the central event dispatcher. It is safe for concurrent use.
// Publishing a type nobody listens to does not allocate.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]subscription
	owner  map[uint64]EventType
	nextID uint64
	logger *slog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[EventType][]subscription),
		owner:  make(map[uint64]EventType),
		logger: logger,
	}
}

// Subscribe registers a handler for the given event type, or for every type
// when eventType is All. Returns an ID for Unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler HandlerFunc) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscription{id: b.nextID, handler: handler})
	b.owner[b.nextID] = eventType
	return b.nextID
}

// Unsubscribe removes a subscription by ID. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	et, ok := b.owner[id]
	if !ok {
		return
	}
	delete(b.owner, id)
	// Publish may still hold the old slice, so build a new one.
	kept := slices.DeleteFunc(slices.Clone(b.subs[et]), func(s subscription) bool { return s.id == id })
	if len(kept) == 0 {
		delete(b.subs, et)
		return
	}
	b.subs[et] = kept
}

// Publish dispatches an event to the subscribers of its type, then to the
// All subscribers. Handlers run synchronously in registration order. A
// panicking handler is recovered and logged; remaining handlers still run.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	typed, wild := b.subs[event.Type], b.subs[All]
	b.mu.RUnlock()
	if len(typed)+len(wild) == 0 {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Subscription slices are replaced, never edited in place, so these
	// snapshots stay valid without the lock.
	for _, s := range typed {
		b.call(s.handler, event)
	}
	for _, s := range wild {
		b.call(s.handler, event)
	}
}

func (b *Bus) call(handler HandlerFunc, event Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event handler panicked", "event", string(event.Type), "panic", r)
		}
	}()
	handler(event)
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Ticker emits periodic TICK events. Call Stop to shut it down.
type Ticker struct {
	bus    *Bus
	base   time.Duration
	stopCh chan struct{}
	done   chan struct{}
}

// NewTicker starts emitting TICK_5, TICK_60 and TICK_3600 events.
func NewTicker(bus *Bus) *Ticker {
	return newTicker(bus, 5*time.Second)
}

// newTicker drives every tick from one timer firing each base interval.
// TICK_60 and TICK_3600 follow on the 12th and 720th firing, after TICK_5
// for the same instant.
func newTicker(bus *Bus, base time.Duration) *Ticker {
	t := &Ticker{
		bus:    bus,
		base:   base,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Ticker) run() {
	defer close(t.done)

	tk := time.NewTicker(t.base)
	defer tk.Stop()

	for n := 1; ; n++ {
		select {
		case <-t.stopCh:
			return
		case now := <-tk.C:
			t.bus.Publish(Event{Type: Tick5, Timestamp: now})
			if n%12 == 0 {
				t.bus.Publish(Event{Type: Tick60, Timestamp: now})
			}
			if n%720 == 0 {
				t.bus.Publish(Event{Type: Tick3600, Timestamp: now})
				n = 0
			}
		}
	}
}

// Stop terminates the ticker goroutine and waits for it to finish.
func (t *Ticker) Stop() {
	close(t.stopCh)
	<-t.done
}
