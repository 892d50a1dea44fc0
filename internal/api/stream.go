package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kahiteam/ringbuf/internal/events"
)

// streamBacklog is how many events a slow stream client may fall behind
// before newer events are dropped for it.
const streamBacklog = 64

// eventQueue decouples the synchronous bus from one stream client.
type eventQueue struct {
	filter map[events.EventType]bool // nil passes every type
	ch     chan events.Event

	mu      sync.Mutex
	dropped int
}

func newEventQueue(filter map[events.EventType]bool) *eventQueue {
	return &eventQueue{filter: filter, ch: make(chan events.Event, streamBacklog)}
}

// offer never blocks; it runs on the publisher's goroutine.
func (q *eventQueue) offer(e events.Event) {
	if q.filter != nil && !q.filter[e.Type] {
		return
	}
	select {
	case q.ch <- e:
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
	}
}

// takeDropped returns and clears the number of events lost since the last call.
func (q *eventQueue) takeDropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.dropped
	q.dropped = 0
	return n
}

func parseTypeFilter(param string) (map[events.EventType]bool, error) {
	if param == "" {
		return nil, nil
	}
	filter := make(map[events.EventType]bool)
	for t := range strings.SplitSeq(param, ",") {
		et, err := events.ParseEventType(strings.TrimSpace(t))
		if err != nil {
			return nil, err
		}
		filter[et] = true
	}
	return filter, nil
}

// handleEventStream writes bus events as server-sent events. Each event
// carries an increasing id. Idle streams get a comment line every keepalive
// interval, and events lost to a full backlog are reported as a comment
// before the next delivered event.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "SERVER_ERROR")
		return
	}
	filter, err := parseTypeFilter(r.URL.Query().Get("types"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	q := newEventQueue(filter)
	sub := s.bus.Subscribe(events.All, q.offer)
	defer s.bus.Unsubscribe(sub)

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case e := <-q.ch:
			if n := q.takeDropped(); n > 0 {
				fmt.Fprintf(w, ": dropped %d\n\n", n)
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			seq++
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, e.Type, data)
			flusher.Flush()
		}
	}
}
