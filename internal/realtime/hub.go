// Package realtime fans out lead table changes to subscribers.
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/sells-group/lead-harvest/internal/model"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// TableLeads is the table name carried on lead events.
const TableLeads = "leads"

// Event describes one row change. New is set for INSERT and UPDATE, OldID
// for DELETE.
type Event struct {
	Type   EventType   `json:"eventType"`
	Table  string      `json:"table"`
	New    *model.Lead `json:"new,omitempty"`
	OldID  string      `json:"oldId,omitempty"`
	UserID string      `json:"-"`
}

type subscriber struct {
	ch    chan Event
	owner string
}

// Hub broadcasts events to subscribers of the same owner. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	next    uint64
	buffer  int
	dropped atomic.Uint64
}

// NewHub returns a Hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe registers a subscriber for owner's events. The returned func
// unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(owner string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer), owner: owner}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers e to every subscriber of e.UserID. A nil Hub ignores it.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.Table == "" {
		e.Table = TableLeads
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.owner != e.UserID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
