package behavior

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptrace/scoring/internal/model"
)

type stubHistory struct {
	events  []model.Event
	listErr error
}

func (s *stubHistory) CountEvents(ctx context.Context, userID string, typ model.EventType, since time.Time) (int, error) {
	return 0, nil
}

func (s *stubHistory) ListEvents(ctx context.Context, userID string, since time.Time) ([]model.Event, error) {
	return s.events, s.listErr
}

func (s *stubHistory) Record(ctx context.Context, ev model.Event) error {
	return nil
}

func newTestAnalyzer(history *stubHistory, now time.Time) *Analyzer {
	a := NewAnalyzer(history)
	a.now = func() time.Time { return now }
	return a
}

func TestAnalyzer_NovelHour(t *testing.T) {
	now := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)

	// No activity at all in the window.
	a := newTestAnalyzer(&stubHistory{}, now)
	score, err := a.Score(context.Background(), model.Event{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 15, score)

	// Activity exists but never in the current hour bucket.
	history := &stubHistory{events: []model.Event{
		{UserID: "u", CreatedAt: now.Add(-26 * time.Hour)}, // hour 12
		{UserID: "u", CreatedAt: now.Add(-25 * time.Hour)}, // hour 13
	}}
	a = newTestAnalyzer(history, now)
	score, err = a.Score(context.Background(), model.Event{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 15, score)
}

func TestAnalyzer_RareHour(t *testing.T) {
	now := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)

	// A single past event in the current hour bucket, well before now.
	history := &stubHistory{events: []model.Event{
		{UserID: "u", CreatedAt: now.Add(-24 * time.Hour)}, // hour 14 yesterday
	}}
	a := newTestAnalyzer(history, now)

	score, err := a.Score(context.Background(), model.Event{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 10, score)
}

func TestAnalyzer_EstablishedHourScoresZero(t *testing.T) {
	now := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)

	history := &stubHistory{events: []model.Event{
		{UserID: "u", CreatedAt: now.Add(-48 * time.Hour)}, // hour 14
		{UserID: "u", CreatedAt: now.Add(-24 * time.Hour)}, // hour 14
	}}
	a := newTestAnalyzer(history, now)

	score, err := a.Score(context.Background(), model.Event{UserID: "u"})
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestAnalyzer_RapidSuccession(t *testing.T) {
	now := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)

	// Two events established in the current bucket, the latest 30 seconds
	// ago: only the rapid-succession contribution applies.
	history := &stubHistory{events: []model.Event{
		{UserID: "u", CreatedAt: now.Add(-24 * time.Hour)},
		{UserID: "u", CreatedAt: now.Add(-30 * time.Second)},
	}}
	a := newTestAnalyzer(history, now)

	score, err := a.Score(context.Background(), model.Event{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 20, score)
}

func TestAnalyzer_RareAndRapidStack(t *testing.T) {
	now := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)

	// One event in the current bucket and it was 30 seconds ago: rare
	// hour (10) and rapid succession (20) both apply.
	history := &stubHistory{events: []model.Event{
		{UserID: "u", CreatedAt: now.Add(-30 * time.Second)},
	}}
	a := newTestAnalyzer(history, now)

	score, err := a.Score(context.Background(), model.Event{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, 30, score)
}

func TestAnalyzer_HistoryError(t *testing.T) {
	histErr := errors.New("timeout")
	a := newTestAnalyzer(&stubHistory{listErr: histErr}, time.Now())

	_, err := a.Score(context.Background(), model.Event{UserID: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, histErr)
}
