package store

import (
	"container/ring"
	"sync"
	"time"

	"github.com/deeptrace/scoring/internal/model"
)

// EventLog is a bounded, thread-safe ring of enriched events serving the
// query API. Once the ring is full the oldest entries are overwritten.
type EventLog struct {
	mu   sync.RWMutex
	ring *ring.Ring
	cap  int
}

// Filter narrows an EventLog listing. Zero values match everything.
type Filter struct {
	UserID   string
	Type     model.EventType
	Severity model.Severity
	Flagged  *bool
	Since    time.Time
	Limit    int
}

// NewEventLog creates a log holding at most capacity events.
func NewEventLog(capacity int) *EventLog {
	return &EventLog{
		ring: ring.New(capacity),
		cap:  capacity,
	}
}

// Add appends an enriched event, evicting the oldest when full.
func (l *EventLog) Add(ev model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring.Value = ev
	l.ring = l.ring.Next()
}

// List returns events matching the filter, newest first.
func (l *EventLog) List(f Filter) []model.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var all []model.Event
	l.ring.Do(func(value interface{}) {
		if value == nil {
			return
		}
		ev, ok := value.(model.Event)
		if !ok {
			return
		}
		if f.UserID != "" && ev.UserID != f.UserID {
			return
		}
		if f.Type != "" && ev.Type != f.Type {
			return
		}
		if f.Severity != "" && ev.Severity != f.Severity {
			return
		}
		if f.Flagged != nil && ev.Flagged != *f.Flagged {
			return
		}
		if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
			return
		}
		all = append(all, ev)
	})

	// Ring iteration yields oldest first; flip to newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all
}

// Len counts the events currently held.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	l.ring.Do(func(value interface{}) {
		if value != nil {
			count++
		}
	})
	return count
}

// Cap returns the configured capacity.
func (l *EventLog) Cap() int {
	return l.cap
}
