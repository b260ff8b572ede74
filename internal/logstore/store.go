package logstore

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultCapacity is the record limit used when no capacity is configured.
const DefaultCapacity = 50

// Record is one machine update as received from the hub, stamped with its
// local arrival time. Records are never mutated after creation; ids are not
// guaranteed unique across updates, so identity is (ID, arrival order).
type Record struct {
	ID            string             `json:"id"`
	MachineID     string             `json:"machineId"`
	CustomerID    string             `json:"customerId"`
	Name          string             `json:"name"`
	UserID        string             `json:"userId"`
	Color         string             `json:"color"`
	Status        string             `json:"status"`
	StatusSummary map[string]float64 `json:"statusSummary,omitempty"`
	ReceivedAt    time.Time          `json:"receivedAt"`
}

// envelope is the expected shape of a ReceiveMachineUpdate payload.
// A payload without the data object is dropped.
type envelope struct {
	Data *Record `json:"data"`
}

// EventKind distinguishes store notifications.
type EventKind string

const (
	EventAppend EventKind = "append"
	EventClear  EventKind = "clear"
)

// Event is one store change delivered to subscribers.
type Event struct {
	Kind   EventKind
	Record Record // set for EventAppend
}

// Store is a thread-safe bounded log of records, newest first.
type Store struct {
	mu      sync.Mutex
	cap     int
	records []Record
	subs    map[*Subscription]struct{}
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store holding at most capacity records.
// A capacity of zero or less falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		cap:  capacity,
		subs: make(map[*Subscription]struct{}),
		now:  time.Now,
	}
}

// Ingest decodes the raw payload of one push event and prepends the contained
// record. It reports whether a record was stored; malformed payloads (invalid
// JSON or a missing data envelope) are dropped without touching the buffer.
func (s *Store) Ingest(payload []byte) bool {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Data == nil {
		return false
	}

	rec := *env.Data
	s.mu.Lock()
	rec.ReceivedAt = s.now()
	s.records = append([]Record{rec}, s.records...)
	if len(s.records) > s.cap {
		s.records = s.records[:s.cap]
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventAppend, Record: rec})
	return true
}

// Clear empties the buffer unconditionally.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()

	s.notify(Event{Kind: EventClear})
}

// Records returns a copy of the buffer, newest first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the current number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Capacity returns the configured record limit.
func (s *Store) Capacity() int {
	return s.cap
}

// Subscription receives store events on C until Close is called.
type Subscription struct {
	C  chan Event
	st *Store
}

// Subscribe registers a new subscriber with the given channel depth.
// A depth of zero or less falls back to a small default.
func (s *Store) Subscribe(depth int) *Subscription {
	if depth <= 0 {
		depth = 16
	}
	sub := &Subscription{C: make(chan Event, depth), st: s}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Close unregisters the subscription. Its channel is not closed so a
// concurrent notify never sends on a closed channel; pending events are
// simply abandoned.
func (sub *Subscription) Close() {
	sub.st.mu.Lock()
	delete(sub.st.subs, sub)
	sub.st.mu.Unlock()
}

// notify fans the event out to all subscribers. When a subscriber's channel
// is full the oldest pending event is evicted so the newest is kept.
func (s *Store) notify(ev Event) {
	s.mu.Lock()
	targets := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.C <- ev:
		default:
			select {
			case <-sub.C:
			default:
			}
			select {
			case sub.C <- ev:
			default:
			}
		}
	}
}
