// Package behavior computes the always-on behavioral deviation score: an
// anomaly contribution derived from a user's trailing activity pattern,
// independent of whether any detection rule matched.
package behavior

import (
	"context"
	"fmt"
	"time"

	"github.com/deeptrace/scoring/internal/model"
	"github.com/deeptrace/scoring/internal/store"
)

const (
	// deviationWindow is how far back the analyzer looks.
	deviationWindow = 7 * 24 * time.Hour

	novelHourScore       = 15
	rareHourScore        = 10
	rapidSuccessionScore = 20

	// Fewer than this many historical events in the current hour-of-day
	// bucket counts as a rare pattern.
	rareHourThreshold = 2

	// Two events closer together than this are rapid succession.
	rapidSuccessionGap = time.Minute
)

// Analyzer scores how far an event deviates from its user's established
// time-of-day pattern. The score feeds the final risk total but never
// flags an event or overrides its severity on its own.
type Analyzer struct {
	history store.EventHistory

	now func() time.Time
}

// NewAnalyzer creates an analyzer backed by the given history store.
func NewAnalyzer(history store.EventHistory) *Analyzer {
	return &Analyzer{history: history, now: time.Now}
}

// Score returns the deviation contribution for the event: activity in a
// never-before-seen hour of day scores highest, rarely-seen hours less,
// and an event arriving within a minute of the user's most recent prior
// event adds a rapid-succession penalty.
func (a *Analyzer) Score(ctx context.Context, ev model.Event) (int, error) {
	now := a.now()
	history, err := a.history.ListEvents(ctx, ev.UserID, now.Add(-deviationWindow))
	if err != nil {
		return 0, fmt.Errorf("deviation history for user %s: %w", ev.UserID, err)
	}

	buckets := make(map[int]int)
	for _, past := range history {
		buckets[past.CreatedAt.Hour()]++
	}

	score := 0
	switch normal := buckets[now.Hour()]; {
	case normal == 0:
		score += novelHourScore
	case normal < rareHourThreshold:
		score += rareHourScore
	}

	// History is ordered by creation time ascending, so the last entry is
	// the user's most recent prior event.
	if len(history) > 0 {
		last := history[len(history)-1]
		if now.Sub(last.CreatedAt) < rapidSuccessionGap {
			score += rapidSuccessionScore
		}
	}
	return score, nil
}
