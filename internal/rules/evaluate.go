package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/deeptrace/scoring/internal/model"
	"github.com/deeptrace/scoring/internal/store"
)

// Per-category scores contributed on a trigger.
const (
	keywordScore      = 25
	timeWindowScore   = 20
	documentTypeScore = 30
	frequencyScore    = 40

	firstActivityScore = 10
	burstActivityScore = 20
	offHoursScore      = 15

	// A behavioral rule considers more than this many events inside one
	// hour-of-day bucket a burst.
	burstThreshold = 10

	// Off-hours means before 06:00 or after 22:00.
	offHoursMorning = 6
	offHoursEvening = 22
)

// behavioralWindow is how far back a behavioral rule looks.
const behavioralWindow = 24 * time.Hour

// Result is the outcome of evaluating one rule against one event.
type Result struct {
	Triggered bool
	Score     int
}

// Evaluator dispatches events to the per-category rule predicates. The
// keyword, time and document evaluators are pure; frequency and behavioral
// consult the event history. Errors are returned only for history-store
// failures; malformed or empty conditions make a rule non-triggering.
type Evaluator struct {
	history store.EventHistory

	// now is the evaluation clock, injectable for tests.
	now func() time.Time
}

// NewEvaluator creates an evaluator backed by the given history store.
func NewEvaluator(history store.EventHistory) *Evaluator {
	return &Evaluator{history: history, now: time.Now}
}

// EvaluateRule runs the predicate for the rule's category against the event.
func (e *Evaluator) EvaluateRule(ctx context.Context, ev model.Event, rule Rule) (Result, error) {
	switch rule.Type {
	case TypeKeyword:
		if matchKeywords(ev, rule.Conditions.Keywords) {
			return Result{Triggered: true, Score: keywordScore}, nil
		}
		return Result{}, nil
	case TypeTime:
		if outsideAllowedHours(ev, rule.Conditions.AllowedHours) {
			return Result{Triggered: true, Score: timeWindowScore}, nil
		}
		return Result{}, nil
	case TypeDocument:
		if matchDocumentType(ev, rule.Conditions.DocumentTypes) {
			return Result{Triggered: true, Score: documentTypeScore}, nil
		}
		return Result{}, nil
	case TypeFrequency:
		return e.checkFrequency(ctx, ev, rule.Conditions.MaxFrequency)
	case TypeBehavioral:
		return e.checkBehavioralPattern(ctx, ev)
	default:
		// Unknown category: non-triggering, never aborts the walk.
		return Result{}, nil
	}
}

// matchKeywords reports whether any configured keyword is a
// case-insensitive substring of the event's content or filename.
func matchKeywords(ev model.Event, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}

	content := strings.ToLower(ev.Data.Content)
	filename := strings.ToLower(ev.Data.Filename)

	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(content, kw) || strings.Contains(filename, kw) {
			return true
		}
	}
	return false
}

// outsideAllowedHours reports whether the event's hour of day falls outside
// the allowed window. The hour comes from the event's own creation time; a
// missing window or creation time never triggers.
func outsideAllowedHours(ev model.Event, window *HourWindow) bool {
	if window == nil || ev.CreatedAt.IsZero() {
		return false
	}

	hour := ev.CreatedAt.Hour()
	if window.Start < window.End {
		return hour < window.Start || hour > window.End
	}
	// Overnight windows (start >= end, e.g. 22 to 6) keep the conjunction
	// the product has always shipped with, which no hour value can satisfy.
	// TODO: confirm with the product owner whether this should be a
	// disjunction before changing the shipped behavior.
	return hour < window.Start && hour > window.End
}

// matchDocumentType reports whether the filename contains any configured
// type string, or its extension equals one, case-insensitively.
func matchDocumentType(ev model.Event, types []string) bool {
	if len(types) == 0 {
		return false
	}

	filename := strings.ToLower(ev.Data.Filename)
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")

	for _, typ := range types {
		typ = strings.ToLower(typ)
		if typ == "" {
			continue
		}
		if strings.Contains(filename, typ) || ext == typ {
			return true
		}
	}
	return false
}

// checkFrequency triggers when the user's same-type event count inside the
// trailing window, anchored at evaluation time, reaches the configured cap.
func (e *Evaluator) checkFrequency(ctx context.Context, ev model.Event, limit *FrequencyLimit) (Result, error) {
	if limit == nil || limit.Count == 0 || limit.TimeWindowMinutes == 0 {
		return Result{}, nil
	}

	since := e.now().Add(-time.Duration(limit.TimeWindowMinutes) * time.Minute)
	count, err := e.history.CountEvents(ctx, ev.UserID, ev.Type, since)
	if err != nil {
		return Result{}, fmt.Errorf("frequency count for user %s: %w", ev.UserID, err)
	}

	if count >= limit.Count {
		return Result{Triggered: true, Score: frequencyScore}, nil
	}
	return Result{}, nil
}

// checkBehavioralPattern scores the user's trailing 24 hours of activity.
// First-ever activity adds a small score without triggering; a burst inside
// a single hour-of-day bucket and off-hours evaluation each add score and
// trigger. The two checks are additive.
func (e *Evaluator) checkBehavioralPattern(ctx context.Context, ev model.Event) (Result, error) {
	since := e.now().Add(-behavioralWindow)
	recent, err := e.history.ListEvents(ctx, ev.UserID, since)
	if err != nil {
		return Result{}, fmt.Errorf("behavioral history for user %s: %w", ev.UserID, err)
	}

	var res Result
	if len(recent) == 0 {
		res.Score += firstActivityScore
	} else {
		buckets := bucketByHour(recent)
		maxHourly := 0
		for _, n := range buckets {
			if n > maxHourly {
				maxHourly = n
			}
		}
		if maxHourly > burstThreshold {
			res.Score += burstActivityScore
			res.Triggered = true
		}
	}

	if hour := e.now().Hour(); hour < offHoursMorning || hour > offHoursEvening {
		res.Score += offHoursScore
		res.Triggered = true
	}
	return res, nil
}

// bucketByHour counts events per hour of day of their creation time.
func bucketByHour(events []model.Event) map[int]int {
	buckets := make(map[int]int)
	for _, ev := range events {
		buckets[ev.CreatedAt.Hour()]++
	}
	return buckets
}
