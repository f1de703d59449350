package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/deeptrace/scoring/internal/model"
)

// MemoryHistory is an in-process EventHistory keeping a per-user buffer of
// recent events with periodic garbage collection. It backs deployments
// without a database and deterministic tests.
type MemoryHistory struct {
	mu     sync.RWMutex
	users  map[string]*userBuffer
	maxAge time.Duration

	gcTicker *time.Ticker
	stopGC   chan struct{}
}

type userBuffer struct {
	mu     sync.RWMutex
	events []model.Event
}

// NewMemoryHistory creates a history retaining events up to maxAge old.
// maxAge must cover the longest window the engine queries (7 days).
func NewMemoryHistory(maxAge time.Duration) *MemoryHistory {
	return &MemoryHistory{
		users:  make(map[string]*userBuffer),
		maxAge: maxAge,
	}
}

// StartGC starts the periodic sweep of expired events.
func (h *MemoryHistory) StartGC(interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gcTicker != nil {
		return
	}
	h.gcTicker = time.NewTicker(interval)
	h.stopGC = make(chan struct{})
	go h.gcLoop(h.gcTicker, h.stopGC)
}

// StopGC stops the sweep routine.
func (h *MemoryHistory) StopGC() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gcTicker != nil {
		h.gcTicker.Stop()
		h.gcTicker = nil
	}
	if h.stopGC != nil {
		close(h.stopGC)
		h.stopGC = nil
	}
}

// Record appends an event to its user's buffer.
func (h *MemoryHistory) Record(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.UserID == "" {
		return nil
	}

	h.mu.Lock()
	buf, ok := h.users[ev.UserID]
	if !ok {
		buf = &userBuffer{}
		h.users[ev.UserID] = buf
	}
	h.mu.Unlock()

	buf.mu.Lock()
	buf.events = append(buf.events, ev)
	buf.mu.Unlock()
	return nil
}

// CountEvents implements EventHistory.
func (h *MemoryHistory) CountEvents(ctx context.Context, userID string, typ model.EventType, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	buf := h.buffer(userID)
	if buf == nil {
		return 0, nil
	}

	buf.mu.RLock()
	defer buf.mu.RUnlock()

	count := 0
	for _, ev := range buf.events {
		if ev.Type == typ && !ev.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ListEvents implements EventHistory.
func (h *MemoryHistory) ListEvents(ctx context.Context, userID string, since time.Time) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := h.buffer(userID)
	if buf == nil {
		return nil, nil
	}

	buf.mu.RLock()
	defer buf.mu.RUnlock()

	var out []model.Event
	for _, ev := range buf.events {
		if !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GC drops events older than maxAge and empty user buffers.
func (h *MemoryHistory) GC(now time.Time) {
	cutoff := now.Add(-h.maxAge)

	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, buf := range h.users {
		buf.mu.Lock()
		kept := buf.events[:0]
		for _, ev := range buf.events {
			if ev.CreatedAt.After(cutoff) {
				kept = append(kept, ev)
			}
		}
		buf.events = kept
		empty := len(kept) == 0
		buf.mu.Unlock()

		if empty {
			delete(h.users, userID)
		}
	}
}

// Stats reports buffer sizes for the health endpoint.
func (h *MemoryHistory) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, buf := range h.users {
		buf.mu.RLock()
		total += len(buf.events)
		buf.mu.RUnlock()
	}
	return map[string]interface{}{
		"users":        len(h.users),
		"total_events": total,
		"max_age":      h.maxAge.String(),
	}
}

func (h *MemoryHistory) buffer(userID string) *userBuffer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.users[userID]
}

func (h *MemoryHistory) gcLoop(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			h.GC(time.Now())
		case <-stop:
			return
		}
	}
}
