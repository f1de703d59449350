package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptrace/scoring/internal/behavior"
	"github.com/deeptrace/scoring/internal/model"
	"github.com/deeptrace/scoring/internal/rules"
)

type stubRuleSource struct {
	rules []rules.Rule
	err   error
}

func (s *stubRuleSource) ListActive(ctx context.Context) ([]rules.Rule, error) {
	return s.rules, s.err
}

type stubHistory struct {
	count    int
	countErr error
	events   []model.Event
	listErr  error
}

func (s *stubHistory) CountEvents(ctx context.Context, userID string, typ model.EventType, since time.Time) (int, error) {
	return s.count, s.countErr
}

func (s *stubHistory) ListEvents(ctx context.Context, userID string, since time.Time) ([]model.Event, error) {
	return s.events, s.listErr
}

func (s *stubHistory) Record(ctx context.Context, ev model.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPipeline(src RuleSource, history *stubHistory) *Pipeline {
	return NewPipeline(src, rules.NewEvaluator(history), behavior.NewAnalyzer(history), nil, testLogger())
}

func keywordRule(id string, priority int, severity model.Severity, keywords ...string) rules.Rule {
	return rules.Rule{
		ID:         id,
		Name:       id,
		Type:       rules.TypeKeyword,
		IsActive:   true,
		Priority:   priority,
		Conditions: rules.Conditions{Keywords: keywords},
		Actions:    rules.Actions{Severity: severity},
	}
}

func TestPipeline_FirstMatchWinsAndStops(t *testing.T) {
	// Both rules match the event; the source is already sorted by
	// priority descending, so only rule A may contribute.
	src := &stubRuleSource{rules: []rules.Rule{
		keywordRule("rule-a", 10, model.SeverityCritical, "confidential"),
		keywordRule("rule-b", 1, model.SeverityLow, "confidential"),
	}}
	p := newTestPipeline(src, &stubHistory{})

	ev := model.Event{
		ID:        "e1",
		UserID:    "user-1",
		Type:      model.EventClipboard,
		Data:      model.EventData{Content: "confidential roadmap"},
		Severity:  model.SeverityLow,
		CreatedAt: time.Now(),
	}
	scored := p.Score(context.Background(), ev)

	assert.True(t, scored.Flagged)
	assert.Equal(t, "rule-a", scored.RuleTriggered)
	assert.Equal(t, model.SeverityCritical, scored.Severity)
	// Keyword score 25 plus novel-hour deviation 15; rule B's 25 is
	// absent because the walk stopped at rule A.
	assert.Equal(t, 40, scored.RiskScore)
	assert.False(t, scored.ScoringDegraded)
}

func TestPipeline_NoMatchStillScoresBehaviorally(t *testing.T) {
	p := newTestPipeline(&stubRuleSource{}, &stubHistory{})

	ev := model.Event{
		ID:        "e1",
		UserID:    "user-1",
		Type:      model.EventFileAccess,
		Severity:  model.SeverityLow,
		CreatedAt: time.Now(),
	}
	scored := p.Score(context.Background(), ev)

	assert.False(t, scored.Flagged)
	assert.Empty(t, scored.RuleTriggered)
	assert.Equal(t, model.SeverityLow, scored.Severity)
	// No prior activity: novel-time-of-day contribution only.
	assert.Equal(t, 15, scored.RiskScore)
}

func TestPipeline_FailOpenOnRuleStoreError(t *testing.T) {
	src := &stubRuleSource{err: errors.New("rule store unreachable")}
	p := newTestPipeline(src, &stubHistory{})

	ev := model.Event{
		ID:        "e1",
		UserID:    "user-1",
		Type:      model.EventClipboard,
		Data:      model.EventData{Content: "confidential"},
		Severity:  model.SeverityLow,
		CreatedAt: time.Now(),
	}
	scored := p.Score(context.Background(), ev)

	assert.Equal(t, model.SeverityLow, scored.Severity)
	assert.False(t, scored.Flagged)
	assert.Zero(t, scored.RiskScore)
	assert.Empty(t, scored.RuleTriggered)
	assert.True(t, scored.ScoringDegraded)
}

func TestPipeline_FailOpenOnHistoryError(t *testing.T) {
	src := &stubRuleSource{rules: []rules.Rule{{
		ID:       "freq-1",
		Name:     "freq",
		Type:     rules.TypeFrequency,
		IsActive: true,
		Conditions: rules.Conditions{
			MaxFrequency: &rules.FrequencyLimit{Count: 5, TimeWindowMinutes: 60},
		},
		Actions: rules.Actions{Severity: model.SeverityHigh},
	}}}
	p := newTestPipeline(src, &stubHistory{countErr: errors.New("history store down")})

	scored := p.Score(context.Background(), model.Event{
		ID: "e1", UserID: "user-1", Type: model.EventClipboard, CreatedAt: time.Now(),
	})

	assert.True(t, scored.ScoringDegraded)
	assert.False(t, scored.Flagged)
	assert.Zero(t, scored.RiskScore)
}

func TestPipeline_ConfigErrorDoesNotAbortWalk(t *testing.T) {
	// The first rule has no keywords configured: non-triggering, and the
	// walk continues to the lower-priority rule.
	src := &stubRuleSource{rules: []rules.Rule{
		keywordRule("empty-kw", 10, model.SeverityCritical),
		keywordRule("rule-b", 1, model.SeverityMedium, "confidential"),
	}}
	p := newTestPipeline(src, &stubHistory{})

	scored := p.Score(context.Background(), model.Event{
		ID:        "e1",
		UserID:    "user-1",
		Type:      model.EventClipboard,
		Data:      model.EventData{Content: "confidential"},
		Severity:  model.SeverityLow,
		CreatedAt: time.Now(),
	})

	assert.True(t, scored.Flagged)
	assert.Equal(t, "rule-b", scored.RuleTriggered)
	assert.Equal(t, model.SeverityMedium, scored.Severity)
}

func TestClampScore(t *testing.T) {
	require.Equal(t, 100, clampScore(140))
	require.Equal(t, 100, clampScore(100))
	require.Equal(t, 75, clampScore(75))
	require.Equal(t, 0, clampScore(0))
	require.Equal(t, 0, clampScore(-5))
}
