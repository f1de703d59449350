// Package alert emits signals for flagged events. Delivery (email, chat,
// ticketing) belongs to downstream consumers; the notifier only publishes
// the alert payload to NATS and, when configured, a webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/deeptrace/scoring/internal/metrics"
	"github.com/deeptrace/scoring/internal/model"
)

// Alert is the payload emitted for a flagged event.
type Alert struct {
	EventID   string          `json:"event_id"`
	UserID    string          `json:"user_id"`
	Type      model.EventType `json:"type"`
	Severity  model.Severity  `json:"severity"`
	RiskScore int             `json:"risk_score"`
	RuleID    string          `json:"rule_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// contentSnippetLen caps how much captured text rides along on an alert.
const contentSnippetLen = 100

// Notifier turns flagged events at or above a severity threshold into
// alert emissions. Both transports are optional.
type Notifier struct {
	nc          *nats.Conn
	subject     string
	webhookURL  string
	client      *http.Client
	minSeverity model.Severity
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewNotifier creates a notifier. nc may be nil (no NATS emission) and
// webhookURL may be empty (no webhook emission).
func NewNotifier(nc *nats.Conn, subject, webhookURL string, minSeverity model.Severity,
	m *metrics.Metrics, logger *slog.Logger) *Notifier {
	return &Notifier{
		nc:          nc,
		subject:     subject,
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		minSeverity: minSeverity,
		metrics:     m,
		logger:      logger,
	}
}

// Notify emits an alert for the event if it clears the severity threshold.
func (n *Notifier) Notify(ctx context.Context, ev model.Event) {
	if ev.Severity.Level() < n.minSeverity.Level() {
		return
	}

	alert := Alert{
		EventID:   ev.ID,
		UserID:    ev.UserID,
		Type:      ev.Type,
		Severity:  ev.Severity,
		RiskScore: ev.RiskScore,
		RuleID:    ev.RuleTriggered,
		Content:   snippet(ev.Data.Content),
		CreatedAt: ev.CreatedAt,
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("failed to encode alert", "event_id", ev.ID, "error", err)
		return
	}

	if n.nc != nil {
		if err := n.nc.Publish(n.subject, payload); err != nil {
			n.logger.Error("failed to publish alert", "event_id", ev.ID, "subject", n.subject, "error", err)
			if n.metrics != nil {
				n.metrics.IncPublishErrors()
			}
		} else if n.metrics != nil {
			n.metrics.IncAlertsPublished()
		}
	}

	if n.webhookURL != "" {
		if err := n.postWebhook(ctx, payload); err != nil {
			n.logger.Error("failed to deliver alert webhook", "event_id", ev.ID, "error", err)
			if n.metrics != nil {
				n.metrics.IncPublishErrors()
			}
		} else if n.metrics != nil {
			n.metrics.IncAlertsPublished()
		}
	}

	n.logger.Info("alert emitted",
		"event_id", ev.ID, "user_id", ev.UserID, "severity", ev.Severity, "rule_id", ev.RuleTriggered)
}

func (n *Notifier) postWebhook(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func snippet(content string) string {
	if len(content) <= contentSnippetLen {
		return content
	}
	return content[:contentSnippetLen] + "..."
}
