package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the scoring service.
type Metrics struct {
	EventsScoredTotal    prometheus.Counter
	EventsFlaggedTotal   prometheus.Counter
	EventsInvalidTotal   prometheus.Counter
	EventsDuplicateTotal prometheus.Counter
	RulesEvaluatedTotal  prometheus.Counter
	ScoringDegradedTotal prometheus.Counter
	AlertsPublishedTotal prometheus.Counter
	PublishErrorsTotal   prometheus.Counter
	ScoringDuration      prometheus.Histogram
	RulesLoaded          prometheus.Gauge
}

// NewMetrics registers and returns the service instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsScoredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_events_total",
			Help: "Total number of telemetry events run through the scoring pipeline.",
		}),
		EventsFlaggedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_events_flagged_total",
			Help: "Total number of events flagged by a detection rule.",
		}),
		EventsInvalidTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_events_invalid_total",
			Help: "Total number of malformed telemetry submissions rejected.",
		}),
		EventsDuplicateTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_events_duplicate_total",
			Help: "Total number of resubmitted events dropped by the dedupe cache.",
		}),
		RulesEvaluatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_rules_evaluated_total",
			Help: "Total number of rule predicate evaluations.",
		}),
		ScoringDegradedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_degraded_total",
			Help: "Total number of events that fell back to fail-open default scoring.",
		}),
		AlertsPublishedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_alerts_published_total",
			Help: "Total number of alerts emitted for flagged events.",
		}),
		PublishErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scoring_publish_errors_total",
			Help: "Total number of failures publishing enriched events or alerts.",
		}),
		ScoringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scoring_duration_seconds",
			Help:    "End-to-end latency of scoring a single event.",
			Buckets: prometheus.DefBuckets,
		}),
		RulesLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scoring_rules_loaded",
			Help: "Number of active detection rules in the current snapshot.",
		}),
	}
}

func (m *Metrics) IncEventsScored()    { m.EventsScoredTotal.Inc() }
func (m *Metrics) IncEventsFlagged()   { m.EventsFlaggedTotal.Inc() }
func (m *Metrics) IncEventsInvalid()   { m.EventsInvalidTotal.Inc() }
func (m *Metrics) IncEventsDuplicate() { m.EventsDuplicateTotal.Inc() }
func (m *Metrics) IncRulesEvaluated()  { m.RulesEvaluatedTotal.Inc() }
func (m *Metrics) IncScoringDegraded() { m.ScoringDegradedTotal.Inc() }
func (m *Metrics) IncAlertsPublished() { m.AlertsPublishedTotal.Inc() }
func (m *Metrics) IncPublishErrors()   { m.PublishErrorsTotal.Inc() }

func (m *Metrics) ObserveScoringDuration(seconds float64) { m.ScoringDuration.Observe(seconds) }
func (m *Metrics) SetRulesLoaded(n float64)               { m.RulesLoaded.Set(n) }
