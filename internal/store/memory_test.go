package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptrace/scoring/internal/model"
)

func historyEvent(id, userID string, typ model.EventType, createdAt time.Time) model.Event {
	return model.Event{ID: id, UserID: userID, Type: typ, CreatedAt: createdAt}
}

func TestMemoryHistory_CountEvents(t *testing.T) {
	h := NewMemoryHistory(8 * 24 * time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, historyEvent("e1", "user-1", model.EventClipboard, now.Add(-30*time.Minute))))
	require.NoError(t, h.Record(ctx, historyEvent("e2", "user-1", model.EventClipboard, now.Add(-90*time.Minute))))
	require.NoError(t, h.Record(ctx, historyEvent("e3", "user-1", model.EventFileAccess, now.Add(-10*time.Minute))))
	require.NoError(t, h.Record(ctx, historyEvent("e4", "user-2", model.EventClipboard, now.Add(-5*time.Minute))))

	count, err := h.CountEvents(ctx, "user-1", model.EventClipboard, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "counts are scoped to user and type within the window")

	count, err = h.CountEvents(ctx, "user-1", model.EventClipboard, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = h.CountEvents(ctx, "user-3", model.EventClipboard, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count, "unknown users have no history")
}

func TestMemoryHistory_CountWindowBoundaryIsInclusive(t *testing.T) {
	h := NewMemoryHistory(8 * 24 * time.Hour)
	ctx := context.Background()
	since := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, historyEvent("e1", "user-1", model.EventClipboard, since)))

	count, err := h.CountEvents(ctx, "user-1", model.EventClipboard, since)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryHistory_ListEventsAscending(t *testing.T) {
	h := NewMemoryHistory(8 * 24 * time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	// Recorded out of order; listing must come back oldest first.
	require.NoError(t, h.Record(ctx, historyEvent("e2", "user-1", model.EventClipboard, now.Add(-1*time.Hour))))
	require.NoError(t, h.Record(ctx, historyEvent("e3", "user-1", model.EventFileAccess, now.Add(-10*time.Minute))))
	require.NoError(t, h.Record(ctx, historyEvent("e1", "user-1", model.EventClipboard, now.Add(-3*time.Hour))))

	events, err := h.ListEvents(ctx, "user-1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "e2", events[1].ID)
	assert.Equal(t, "e3", events[2].ID)
}

func TestMemoryHistory_GC(t *testing.T) {
	h := NewMemoryHistory(24 * time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, historyEvent("old", "user-1", model.EventClipboard, now.Add(-48*time.Hour))))
	require.NoError(t, h.Record(ctx, historyEvent("fresh", "user-1", model.EventClipboard, now.Add(-time.Hour))))
	require.NoError(t, h.Record(ctx, historyEvent("stale", "user-2", model.EventClipboard, now.Add(-72*time.Hour))))

	h.GC(now)

	events, err := h.ListEvents(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fresh", events[0].ID)

	stats := h.Stats()
	assert.Equal(t, 1, stats["users"], "emptied buffers are dropped")
	assert.Equal(t, 1, stats["total_events"])
}

func TestMemoryHistory_CancelledContext(t *testing.T) {
	h := NewMemoryHistory(24 * time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.CountEvents(ctx, "user-1", model.EventClipboard, time.Time{})
	assert.Error(t, err)
	_, err = h.ListEvents(ctx, "user-1", time.Time{})
	assert.Error(t, err)
	assert.Error(t, h.Record(ctx, historyEvent("e1", "user-1", model.EventClipboard, time.Now())))
}

func TestEventLog_NewestFirstWithEviction(t *testing.T) {
	l := NewEventLog(3)
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3", "e4"} {
		l.Add(historyEvent(id, "user-1", model.EventClipboard, base.Add(time.Duration(i)*time.Minute)))
	}

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 3, l.Cap())

	events := l.List(Filter{})
	require.Len(t, events, 3)
	assert.Equal(t, "e4", events[0].ID, "newest first")
	assert.Equal(t, "e3", events[1].ID)
	assert.Equal(t, "e2", events[2].ID, "e1 was evicted")
}

func TestEventLog_Filters(t *testing.T) {
	l := NewEventLog(10)
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	l.Add(model.Event{ID: "e1", UserID: "user-1", Type: model.EventClipboard, Severity: model.SeverityLow, CreatedAt: base})
	l.Add(model.Event{ID: "e2", UserID: "user-1", Type: model.EventFileDownload, Severity: model.SeverityHigh, Flagged: true, CreatedAt: base.Add(time.Minute)})
	l.Add(model.Event{ID: "e3", UserID: "user-2", Type: model.EventClipboard, Severity: model.SeverityMedium, Flagged: true, CreatedAt: base.Add(2 * time.Minute)})

	byUser := l.List(Filter{UserID: "user-1"})
	require.Len(t, byUser, 2)

	byType := l.List(Filter{Type: model.EventFileDownload})
	require.Len(t, byType, 1)
	assert.Equal(t, "e2", byType[0].ID)

	bySeverity := l.List(Filter{Severity: model.SeverityMedium})
	require.Len(t, bySeverity, 1)
	assert.Equal(t, "e3", bySeverity[0].ID)

	flagged := true
	byFlag := l.List(Filter{Flagged: &flagged})
	assert.Len(t, byFlag, 2)

	since := l.List(Filter{Since: base.Add(90 * time.Second)})
	require.Len(t, since, 1)
	assert.Equal(t, "e3", since[0].ID)

	limited := l.List(Filter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, "e3", limited[0].ID, "limit keeps the newest")
}
