package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/deeptrace/scoring/internal/model"
)

// Publisher fans enriched events out to real-time consumers (dashboard
// aggregation, notification services).
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a publisher on the given subject.
func NewPublisher(nc *nats.Conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{nc: nc, subject: subject, logger: logger}
}

// PublishEnriched publishes one enriched event as JSON.
func (p *Publisher) PublishEnriched(ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode enriched event: %w", err)
	}
	if err := p.nc.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	p.logger.Debug("published enriched event", "subject", p.subject, "event_id", ev.ID)
	return nil
}
