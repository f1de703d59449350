// Package nats carries telemetry over the message bus: a queue subscriber
// for raw agent events and a publisher for enriched events.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/deeptrace/scoring/internal/engine"
	"github.com/deeptrace/scoring/internal/metrics"
	"github.com/deeptrace/scoring/internal/model"
)

// Subscriber consumes raw telemetry submissions from a NATS queue group
// and feeds them through the intake service.
type Subscriber struct {
	nc      *nats.Conn
	service *engine.Service
	subject string
	queue   string
	metrics *metrics.Metrics
	logger  *slog.Logger

	sub *nats.Subscription
}

// NewSubscriber creates a subscriber on the given subject and queue group.
func NewSubscriber(nc *nats.Conn, service *engine.Service, subject, queue string,
	m *metrics.Metrics, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		nc:      nc,
		service: service,
		subject: subject,
		queue:   queue,
		metrics: m,
		logger:  logger,
	}
}

// Subscribe starts consuming and blocks until the context is cancelled,
// then drains the subscription.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, s.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("subscribed to raw telemetry", "subject", s.subject, "queue", s.queue)

	<-ctx.Done()

	s.logger.Info("draining telemetry subscription")
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return nil
}

func (s *Subscriber) handleMessage(msg *nats.Msg) {
	s.logger.Debug("received raw telemetry", "subject", msg.Subject, "data_length", len(msg.Data))

	sub, err := parseSubmission(msg.Data)
	if err != nil {
		s.logger.Error("undecodable telemetry message dropped", "error", err)
		if s.metrics != nil {
			s.metrics.IncEventsInvalid()
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.service.Ingest(ctx, sub); err != nil {
		switch {
		case errors.Is(err, engine.ErrDuplicateSubmission):
			s.logger.Debug("duplicate telemetry message dropped", "event_id", sub.ID)
		case errors.Is(err, engine.ErrInvalidSubmission):
			s.logger.Warn("invalid telemetry message dropped", "error", err)
		default:
			s.logger.Error("failed to ingest telemetry message", "error", err)
		}
	}
}

// parseSubmission decodes an agent message, tolerating both RFC 3339 and
// Unix-millisecond timestamps.
func parseSubmission(data []byte) (engine.Submission, error) {
	var raw struct {
		ID        string          `json:"id"`
		UserID    string          `json:"user_id"`
		Type      string          `json:"type"`
		Data      model.EventData `json:"data"`
		CreatedAt json.RawMessage `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return engine.Submission{}, fmt.Errorf("unmarshal submission: %w", err)
	}

	sub := engine.Submission{
		ID:     raw.ID,
		UserID: raw.UserID,
		Type:   model.EventType(raw.Type),
		Data:   raw.Data,
	}
	if len(raw.CreatedAt) > 0 {
		sub.CreatedAt = parseTimestamp(raw.CreatedAt)
	}
	return sub, nil
}

func parseTimestamp(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts
		}
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}
