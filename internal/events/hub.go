package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Dispatch event types.
const (
	DispatchStarted   = "dispatch.started"
	DispatchCompleted = "dispatch.completed"
	DispatchFailed    = "dispatch.failed"
)

const (
	defaultBacklog   = 100
	subscriberBuffer = 128
)

var droppedEvents = metrics.NewCounter("ipfsbridge_events_dropped_total")

// Event is one published dispatch notification. IDs increase by one per
// Publish and are what SSE clients send back as Last-Event-ID.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub fans dispatch events out to live subscribers and keeps the most recent
// ones so a reconnecting client can catch up.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	backlog []Event // oldest first, len <= cap
	subs    map[chan Event]struct{}
	now     func() time.Time
}

// NewHub returns a hub that remembers up to backlog events (100 when
// backlog <= 0).
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Hub{
		backlog: make([]Event, 0, backlog),
		subs:    make(map[chan Event]struct{}),
		now:     time.Now,
	}
}

// Publish stamps data with the next ID and delivers it. A subscriber whose
// buffer is full misses the event rather than stalling the dispatcher.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: h.now().UTC(), Data: payload}
	h.remember(ev)

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			droppedEvents.Inc()
		}
	}
}

// Subscribe registers a listener. The returned cancel func closes the
// channel and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// SnapshotSince returns remembered events newer than lastID, oldest first.
// Zero returns the whole backlog.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.backlog))
	for _, ev := range h.backlog {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) remember(ev Event) {
	if len(h.backlog) == cap(h.backlog) {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:len(h.backlog)-1]
	}
	h.backlog = append(h.backlog, ev)
}
