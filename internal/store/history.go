package store

import (
	"context"
	"time"

	"github.com/deeptrace/scoring/internal/model"
)

// EventHistory is the read model the scoring engine consults for a user's
// recent activity. Reads are heuristic inputs, not audit counters: two
// near-simultaneous scorings may observe slightly different snapshots.
type EventHistory interface {
	// CountEvents counts a user's events of the given type with a
	// creation time at or after since.
	CountEvents(ctx context.Context, userID string, typ model.EventType, since time.Time) (int, error)

	// ListEvents returns a user's events created at or after since,
	// ordered by creation time ascending.
	ListEvents(ctx context.Context, userID string, since time.Time) ([]model.Event, error)

	// Record persists a scored event into the history.
	Record(ctx context.Context, ev model.Event) error
}
