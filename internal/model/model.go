package model

import (
	"time"
)

// EventType identifies the kind of endpoint telemetry an event carries.
type EventType string

const (
	EventClipboard     EventType = "clipboard"
	EventFileAccess    EventType = "file_access"
	EventOCRDetection  EventType = "ocr_detection"
	EventFileDownload  EventType = "file_download"
	EventDocumentPrint EventType = "document_print"
)

// Valid reports whether t is one of the known telemetry types.
func (t EventType) Valid() bool {
	switch t {
	case EventClipboard, EventFileAccess, EventOCRDetection, EventFileDownload, EventDocumentPrint:
		return true
	}
	return false
}

// Severity is the escalation level assigned to an event. Levels are
// totally ordered: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level returns the numeric rank of a severity. Unknown values rank as low.
func (s Severity) Level() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Valid reports whether s is one of the four known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Level() > a.Level() {
		return b
	}
	return a
}

// MaxContentLength is the cap applied to captured text payloads.
const MaxContentLength = 5000

// MaxRiskScore is the ceiling the accumulated risk score is clamped to.
const MaxRiskScore = 100

// EventData is the free-form capture payload attached to an event. The
// engine treats every field as untrusted text and never validates it
// beyond length.
type EventData struct {
	Content     string                 `json:"content,omitempty"`
	Filename    string                 `json:"filename,omitempty"`
	Filepath    string                 `json:"filepath,omitempty"`
	DocumentID  string                 `json:"document_id,omitempty"`
	Keywords    []string               `json:"keywords,omitempty"`
	Application string                 `json:"application,omitempty"`
	WindowTitle string                 `json:"window_title,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Event is a single telemetry submission from a monitored endpoint. It is
// created once per submission, enriched exactly once by the scoring
// pipeline, and never re-scored.
type Event struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Type   EventType `json:"type"`
	Data   EventData `json:"data"`

	// Enrichment fields, populated by the scoring pipeline.
	Severity      Severity `json:"severity"`
	Flagged       bool     `json:"flagged"`
	RiskScore     int      `json:"risk_score"`
	RuleTriggered string   `json:"rule_triggered,omitempty"`

	// ScoringDegraded marks events that passed through the pipeline while
	// a dependency was failing; their enrichment is the fail-open default
	// and under-reports risk.
	ScoringDegraded bool `json:"scoring_degraded,omitempty"`

	// CreatedAt is assigned when the event is created and is the time
	// basis for time-window and frequency evaluation.
	CreatedAt time.Time `json:"created_at"`
}
