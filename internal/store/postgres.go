package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/deeptrace/scoring/internal/model"
)

// PostgresHistory is the database-backed EventHistory.
type PostgresHistory struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresHistory opens a connection pool against the given DSN and
// verifies connectivity.
func NewPostgresHistory(dsn string, logger *slog.Logger) (*PostgresHistory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresHistory{db: db, logger: logger}, nil
}

// EnsureSchema creates the events table and its query index if absent.
func (s *PostgresHistory) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	type            TEXT NOT NULL,
	data            JSONB NOT NULL DEFAULT '{}',
	severity        TEXT NOT NULL,
	flagged         BOOLEAN NOT NULL DEFAULT FALSE,
	risk_score      INTEGER NOT NULL DEFAULT 0,
	rule_triggered  TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_user_created ON events (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_user_type_created ON events (user_id, type, created_at DESC);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure events schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresHistory) Close() error {
	return s.db.Close()
}

// CountEvents implements EventHistory.
func (s *PostgresHistory) CountEvents(ctx context.Context, userID string, typ model.EventType, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM events WHERE user_id = $1 AND type = $2 AND created_at >= $3`

	var count int
	if err := s.db.QueryRowContext(ctx, q, userID, string(typ), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// ListEvents implements EventHistory.
func (s *PostgresHistory) ListEvents(ctx context.Context, userID string, since time.Time) ([]model.Event, error) {
	const q = `
SELECT id, user_id, type, data, severity, flagged, risk_score, COALESCE(rule_triggered, ''), created_at
FROM events
WHERE user_id = $1 AND created_at >= $2
ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			ev   model.Event
			typ  string
			sev  string
			data []byte
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &typ, &data, &sev, &ev.Flagged, &ev.RiskScore, &ev.RuleTriggered, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = model.EventType(typ)
		ev.Severity = model.Severity(sev)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				s.logger.Warn("undecodable event data ignored", "event_id", ev.ID, "error", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Record implements EventHistory.
func (s *PostgresHistory) Record(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	const q = `
INSERT INTO events (id, user_id, type, data, severity, flagged, risk_score, rule_triggered, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, q, ev.ID, ev.UserID, string(ev.Type), data,
		string(ev.Severity), ev.Flagged, ev.RiskScore, ev.RuleTriggered, ev.CreatedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
