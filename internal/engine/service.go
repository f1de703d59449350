package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/deeptrace/scoring/internal/metrics"
	"github.com/deeptrace/scoring/internal/model"
	"github.com/deeptrace/scoring/internal/store"
)

// ErrInvalidSubmission marks telemetry rejected before scoring.
var ErrInvalidSubmission = errors.New("invalid telemetry submission")

// ErrDuplicateSubmission marks a resubmitted event already ingested once.
// Agents retry on flaky links, so duplicates are routine, not errors worth
// a failure response.
var ErrDuplicateSubmission = errors.New("duplicate telemetry submission")

// EventPublisher fans an enriched event out to real-time consumers.
type EventPublisher interface {
	PublishEnriched(ev model.Event) error
}

// Alerter receives flagged events worth raising.
type Alerter interface {
	Notify(ctx context.Context, ev model.Event)
}

// Submission is a raw telemetry event as received from an endpoint agent,
// before identity and enrichment are assigned.
type Submission struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id"`
	Type      model.EventType `json:"type"`
	Data      model.EventData `json:"data"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// Service is the intake front of the engine: it turns submissions into
// events, scores them, records them into history and the event log, and
// hands them to the publisher and alerter.
type Service struct {
	pipeline  *Pipeline
	history   store.EventHistory
	log       *store.EventLog
	publisher EventPublisher
	alerter   Alerter
	dedupe    *lru.Cache[string, struct{}]
	metrics   *metrics.Metrics
	logger    *slog.Logger

	now func() time.Time
}

// NewService wires the intake service. publisher and alerter may be nil;
// dedupeCap bounds the retry-suppression cache.
func NewService(pipeline *Pipeline, history store.EventHistory, log *store.EventLog,
	publisher EventPublisher, alerter Alerter, dedupeCap int,
	m *metrics.Metrics, logger *slog.Logger) (*Service, error) {

	dedupe, err := lru.New[string, struct{}](dedupeCap)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	return &Service{
		pipeline:  pipeline,
		history:   history,
		log:       log,
		publisher: publisher,
		alerter:   alerter,
		dedupe:    dedupe,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Ingest validates, scores and records one submission, returning the
// enriched event. Scoring itself never fails (fail-open); the returned
// error only reports invalid or duplicate submissions.
func (s *Service) Ingest(ctx context.Context, sub Submission) (model.Event, error) {
	if err := validate(sub); err != nil {
		if s.metrics != nil {
			s.metrics.IncEventsInvalid()
		}
		return model.Event{}, err
	}

	// Agent-supplied IDs dedupe retried submissions; generated IDs are
	// first-sight by definition.
	if sub.ID != "" {
		if _, seen := s.dedupe.Get(sub.ID); seen {
			if s.metrics != nil {
				s.metrics.IncEventsDuplicate()
			}
			return model.Event{}, fmt.Errorf("event %s: %w", sub.ID, ErrDuplicateSubmission)
		}
		s.dedupe.Add(sub.ID, struct{}{})
	}

	ev := s.newEvent(sub)

	start := s.now()
	scored := s.pipeline.Score(ctx, ev)
	if s.metrics != nil {
		s.metrics.IncEventsScored()
		s.metrics.ObserveScoringDuration(time.Since(start).Seconds())
		if scored.Flagged {
			s.metrics.IncEventsFlagged()
		}
	}

	// History feeds heuristics only; a failed write degrades future
	// frequency counts but must not fail the ingest.
	if err := s.history.Record(ctx, scored); err != nil {
		s.logger.Warn("failed to record event into history", "event_id", scored.ID, "error", err)
	}
	s.log.Add(scored)

	if s.publisher != nil {
		if err := s.publisher.PublishEnriched(scored); err != nil {
			s.logger.Error("failed to publish enriched event", "event_id", scored.ID, "error", err)
			if s.metrics != nil {
				s.metrics.IncPublishErrors()
			}
		}
	}
	if s.alerter != nil && scored.Flagged {
		s.alerter.Notify(ctx, scored)
	}

	s.logger.Info("event scored",
		"event_id", scored.ID,
		"user_id", scored.UserID,
		"type", scored.Type,
		"severity", scored.Severity,
		"risk_score", scored.RiskScore,
		"flagged", scored.Flagged,
		"rule_triggered", scored.RuleTriggered,
		"degraded", scored.ScoringDegraded)
	return scored, nil
}

func (s *Service) newEvent(sub Submission) model.Event {
	id := sub.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	data := sub.Data
	if len(data.Content) > model.MaxContentLength {
		data.Content = data.Content[:model.MaxContentLength]
	}

	return model.Event{
		ID:        id,
		UserID:    sub.UserID,
		Type:      sub.Type,
		Data:      data,
		Severity:  model.SeverityLow,
		CreatedAt: createdAt,
	}
}

func validate(sub Submission) error {
	if sub.UserID == "" {
		return fmt.Errorf("user_id is required: %w", ErrInvalidSubmission)
	}
	if !sub.Type.Valid() {
		return fmt.Errorf("unknown event type %q: %w", sub.Type, ErrInvalidSubmission)
	}
	return nil
}
