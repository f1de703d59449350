package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsio "github.com/nats-io/nats.go"

	"github.com/deeptrace/scoring/internal/alert"
	"github.com/deeptrace/scoring/internal/api"
	"github.com/deeptrace/scoring/internal/behavior"
	"github.com/deeptrace/scoring/internal/config"
	"github.com/deeptrace/scoring/internal/engine"
	"github.com/deeptrace/scoring/internal/metrics"
	scoringnats "github.com/deeptrace/scoring/internal/nats"
	"github.com/deeptrace/scoring/internal/rules"
	"github.com/deeptrace/scoring/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting DeepTrace Scoring Service",
		"http_addr", cfg.HTTPAddr,
		"nats_url", cfg.NATSURL,
		"rules_dir", cfg.RulesDir,
		"hot_reload", cfg.HotReload,
		"postgres", cfg.PostgresDSN != "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prometheusMetrics := metrics.NewMetrics()

	// Event history: Postgres when configured, otherwise in-memory with GC.
	var history store.EventHistory
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresHistory(cfg.PostgresDSN, logger)
		if err != nil {
			logger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to ensure events schema", "error", err)
			os.Exit(1)
		}
		history = pg
		logger.Info("Event history backed by Postgres")
	} else {
		mem := store.NewMemoryHistory(cfg.HistoryRetention)
		mem.StartGC(cfg.GCInterval)
		defer mem.StopGC()
		history = mem
		logger.Info("Event history kept in memory", "retention", cfg.HistoryRetention.String())
	}

	// Detection rules.
	ruleLoader := rules.NewLoader(cfg.RulesDir, cfg.HotReload, cfg.DebounceMs, logger)
	if _, err := ruleLoader.LoadSnapshot(); err != nil {
		logger.Error("Failed to load initial rules snapshot", "error", err)
		os.Exit(1)
	}
	if err := ruleLoader.WatchForChanges(); err != nil {
		logger.Error("Failed to start rules watcher", "error", err)
		os.Exit(1)
	}
	defer ruleLoader.Close()

	prometheusMetrics.SetRulesLoaded(float64(len(ruleLoader.GetSnapshot().Rules)))
	go func() {
		for range ruleLoader.Subscribe() {
			prometheusMetrics.SetRulesLoaded(float64(len(ruleLoader.GetSnapshot().Rules)))
		}
	}()

	// Optional message bus.
	var nc *natsio.Conn
	if cfg.NATSURL != "" {
		nc, err = natsio.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		logger.Info("Connected to NATS", "url", cfg.NATSURL)
	}

	var publisher engine.EventPublisher
	if nc != nil {
		publisher = scoringnats.NewPublisher(nc, cfg.EnrichedSubject, logger)
	}
	var alerter engine.Alerter
	if nc != nil || cfg.AlertWebhookURL != "" {
		alerter = alert.NewNotifier(nc, cfg.AlertSubject, cfg.AlertWebhookURL,
			cfg.AlertMinSeverity, prometheusMetrics, logger)
	}

	// Scoring pipeline and intake service.
	pipeline := engine.NewPipeline(ruleLoader, rules.NewEvaluator(history),
		behavior.NewAnalyzer(history), prometheusMetrics, logger)
	eventLog := store.NewEventLog(cfg.EventLogCap)
	service, err := engine.NewService(pipeline, history, eventLog, publisher, alerter,
		cfg.DedupeCap, prometheusMetrics, logger)
	if err != nil {
		logger.Error("Failed to create intake service", "error", err)
		os.Exit(1)
	}

	// HTTP surface.
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(service, eventLog, ruleLoader, logger).Router(),
	}
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Bus intake.
	if nc != nil {
		subscriber := scoringnats.NewSubscriber(nc, service, cfg.RawSubject, cfg.Queue,
			prometheusMetrics, logger)
		go func() {
			if err := subscriber.Subscribe(ctx); err != nil {
				logger.Error("NATS subscriber error", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Scoring service started successfully")
	<-sigChan

	logger.Info("Shutting down scoring service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Scoring service stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
