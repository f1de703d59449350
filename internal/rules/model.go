package rules

import (
	"github.com/deeptrace/scoring/internal/model"
)

// RuleType determines which evaluator a rule is dispatched to.
type RuleType string

const (
	TypeKeyword    RuleType = "keyword"
	TypeTime       RuleType = "time"
	TypeDocument   RuleType = "document"
	TypeFrequency  RuleType = "frequency"
	TypeBehavioral RuleType = "behavioral"
)

// Valid reports whether t is one of the five rule categories.
func (t RuleType) Valid() bool {
	switch t {
	case TypeKeyword, TypeTime, TypeDocument, TypeFrequency, TypeBehavioral:
		return true
	}
	return false
}

// HourWindow is an allowed hours-of-day range, both bounds 0-23 inclusive.
type HourWindow struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// FrequencyLimit caps how many same-type events a user may produce inside
// a trailing window before a frequency rule triggers.
type FrequencyLimit struct {
	Count             int `yaml:"count" json:"count"`
	TimeWindowMinutes int `yaml:"time_window_minutes" json:"time_window_minutes"`
}

// Conditions carries the per-category payload of a rule. Only the field
// matching the rule's type is meaningful; the evaluators ignore the rest.
// A nil/empty field for the rule's own type makes the rule non-triggering
// rather than invalid.
type Conditions struct {
	Keywords      []string        `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	AllowedHours  *HourWindow     `yaml:"allowed_hours,omitempty" json:"allowed_hours,omitempty"`
	DocumentTypes []string        `yaml:"document_types,omitempty" json:"document_types,omitempty"`
	MaxFrequency  *FrequencyLimit `yaml:"max_frequency,omitempty" json:"max_frequency,omitempty"`
}

// Actions describes what a rule match should cause downstream. Only
// Severity is consumed by the scoring engine itself; the other flags ride
// along on the enriched event for consumers.
type Actions struct {
	Severity        model.Severity `yaml:"severity" json:"severity"`
	Notify          bool           `yaml:"notify" json:"notify"`
	Block           bool           `yaml:"block" json:"block"`
	RequireApproval bool           `yaml:"require_approval" json:"require_approval"`
}

// Rule is a single detection rule. Rules are administered out of band and
// are read-only from the engine's perspective.
type Rule struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Type        RuleType   `yaml:"type" json:"type"`
	IsActive    bool       `yaml:"is_active" json:"is_active"`
	Priority    int        `yaml:"priority" json:"priority"`
	Conditions  Conditions `yaml:"conditions" json:"conditions"`
	Actions     Actions    `yaml:"actions" json:"actions"`

	// SourceFile records which rules file the rule was loaded from.
	SourceFile string `yaml:"-" json:"source_file,omitempty"`
}

// Snapshot is an immutable view of the loaded rules, sorted by priority
// descending (evaluation order).
type Snapshot struct {
	Rules   []Rule
	Version int64
}

// Validate checks the rule envelope. Condition payloads are deliberately
// not validated here: a rule whose conditions are empty for its type is
// legal and simply never triggers.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "rule ID is required"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "rule name is required"}
	}
	if !r.Type.Valid() {
		return &ValidationError{Field: "type", Message: "type must be keyword/time/document/frequency/behavioral"}
	}
	if !r.Actions.Severity.Valid() {
		return &ValidationError{Field: "actions.severity", Message: "severity must be low/medium/high/critical"}
	}
	if w := r.Conditions.AllowedHours; w != nil {
		if w.Start < 0 || w.Start > 23 || w.End < 0 || w.End > 23 {
			return &ValidationError{Field: "conditions.allowed_hours", Message: "hours must be between 0 and 23"}
		}
	}
	if f := r.Conditions.MaxFrequency; f != nil {
		if f.Count < 0 || f.TimeWindowMinutes < 0 {
			return &ValidationError{Field: "conditions.max_frequency", Message: "count and time window must not be negative"}
		}
	}
	return nil
}

// ValidationError reports a malformed rule field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
