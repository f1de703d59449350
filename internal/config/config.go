package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/deeptrace/scoring/internal/model"
)

// Config holds the scoring service configuration, loaded from environment
// variables.
type Config struct {
	HTTPAddr string

	// NATSURL is optional; empty disables the bus (HTTP-only intake).
	NATSURL         string
	RawSubject      string
	EnrichedSubject string
	AlertSubject    string
	Queue           string

	RulesDir   string
	HotReload  bool
	DebounceMs int

	// PostgresDSN is optional; empty keeps event history in memory.
	PostgresDSN      string
	HistoryRetention time.Duration
	GCInterval       time.Duration

	DedupeCap   int
	EventLogCap int

	AlertWebhookURL  string
	AlertMinSeverity model.Severity

	LogLevel string
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr: getEnv("SCORING_HTTP_ADDR", ":8080"),

		NATSURL:         getEnv("SCORING_NATS_URL", ""),
		RawSubject:      getEnv("SCORING_RAW_SUBJECT", "telemetry.events.raw"),
		EnrichedSubject: getEnv("SCORING_ENRICHED_SUBJECT", "telemetry.events.enriched"),
		AlertSubject:    getEnv("SCORING_ALERT_SUBJECT", "alerts.flagged"),
		Queue:           getEnv("SCORING_QUEUE", "scoring"),

		RulesDir:   getEnv("SCORING_RULES_DIR", "rules.d"),
		HotReload:  getBoolEnv("SCORING_HOT_RELOAD", false),
		DebounceMs: getIntEnv("SCORING_DEBOUNCE_MS", 1000),

		PostgresDSN:      getEnv("SCORING_POSTGRES_DSN", ""),
		HistoryRetention: time.Duration(getIntEnv("SCORING_HISTORY_RETENTION_HOURS", 8*24)) * time.Hour,
		GCInterval:       time.Duration(getIntEnv("SCORING_GC_INTERVAL_SEC", 60)) * time.Second,

		DedupeCap:   getIntEnv("SCORING_DEDUPE_CAP", 100000),
		EventLogCap: getIntEnv("SCORING_EVENT_LOG_CAP", 10000),

		AlertWebhookURL:  getEnv("SCORING_ALERT_WEBHOOK_URL", ""),
		AlertMinSeverity: model.Severity(getEnv("SCORING_ALERT_MIN_SEVERITY", "medium")),

		LogLevel: getEnv("SCORING_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP address must not be empty")
	}
	if c.RulesDir == "" {
		return fmt.Errorf("rules directory must not be empty")
	}
	if c.DedupeCap <= 0 {
		return fmt.Errorf("dedupe cap must be positive")
	}
	if c.EventLogCap <= 0 {
		return fmt.Errorf("event log cap must be positive")
	}
	if !c.AlertMinSeverity.Valid() {
		return fmt.Errorf("alert min severity must be low/medium/high/critical")
	}
	// History retention must cover the longest evaluation window (7 days).
	if c.HistoryRetention < 7*24*time.Hour {
		return fmt.Errorf("history retention must be at least 168h")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
