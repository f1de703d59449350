// Package engine orchestrates event scoring: it walks the active detection
// rules in priority order, applies the first match, folds in the
// behavioral deviation score and produces the enriched event.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deeptrace/scoring/internal/behavior"
	"github.com/deeptrace/scoring/internal/metrics"
	"github.com/deeptrace/scoring/internal/model"
	"github.com/deeptrace/scoring/internal/rules"
)

// RuleSource supplies the active detection rules, sorted by priority
// descending.
type RuleSource interface {
	ListActive(ctx context.Context) ([]rules.Rule, error)
}

// Pipeline is the scoring entry point. Score never returns an error: any
// dependency failure resolves to a fail-open enriched event so a broken
// scoring path under-detects instead of blocking telemetry ingestion.
type Pipeline struct {
	rules     RuleSource
	evaluator *rules.Evaluator
	analyzer  *behavior.Analyzer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewPipeline wires a pipeline from its collaborators. metrics may be nil.
func NewPipeline(src RuleSource, evaluator *rules.Evaluator, analyzer *behavior.Analyzer, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		rules:     src,
		evaluator: evaluator,
		analyzer:  analyzer,
		metrics:   m,
		logger:    logger,
	}
}

// Score enriches the event with severity, risk score, flag and the
// triggering rule, if any. On dependency failure it returns the event with
// default enrichment and marks it degraded.
func (p *Pipeline) Score(ctx context.Context, ev model.Event) model.Event {
	scored, err := p.score(ctx, ev)
	if err != nil {
		p.logger.Error("scoring degraded, returning fail-open event",
			"event_id", ev.ID, "user_id", ev.UserID, "type", ev.Type, "error", err)
		if p.metrics != nil {
			p.metrics.IncScoringDegraded()
		}
		ev.Severity = model.SeverityLow
		ev.Flagged = false
		ev.RiskScore = 0
		ev.RuleTriggered = ""
		ev.ScoringDegraded = true
		return ev
	}
	return scored
}

func (p *Pipeline) score(ctx context.Context, ev model.Event) (model.Event, error) {
	active, err := p.rules.ListActive(ctx)
	if err != nil {
		return ev, fmt.Errorf("list active rules: %w", err)
	}

	severity := model.SeverityLow
	total := 0

	matched, res, err := p.firstTrigger(ctx, ev, active)
	if err != nil {
		return ev, err
	}
	if matched != nil {
		ev.Flagged = true
		ev.RuleTriggered = matched.ID
		severity = model.MaxSeverity(severity, matched.Actions.Severity)
		total += res.Score
	}

	// The deviation score applies whether or not a rule matched.
	deviation, err := p.analyzer.Score(ctx, ev)
	if err != nil {
		return ev, err
	}
	total += deviation

	ev.Severity = severity
	ev.RiskScore = clampScore(total)
	return ev, nil
}

// firstTrigger walks the priority-ordered rules and stops at the first one
// whose predicate holds; lower-priority rules are never evaluated after a
// match.
func (p *Pipeline) firstTrigger(ctx context.Context, ev model.Event, active []rules.Rule) (*rules.Rule, rules.Result, error) {
	for i := range active {
		if p.metrics != nil {
			p.metrics.IncRulesEvaluated()
		}
		res, err := p.evaluator.EvaluateRule(ctx, ev, active[i])
		if err != nil {
			return nil, rules.Result{}, fmt.Errorf("evaluate rule %s: %w", active[i].ID, err)
		}
		if res.Triggered {
			return &active[i], res, nil
		}
	}
	return nil, rules.Result{}, nil
}

func clampScore(n int) int {
	if n > model.MaxRiskScore {
		return model.MaxRiskScore
	}
	if n < 0 {
		return 0
	}
	return n
}
