// Package api exposes the HTTP surface of the scoring service: telemetry
// intake, enriched-event queries, the loaded rule snapshot and the usual
// health and metrics endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deeptrace/scoring/internal/engine"
	"github.com/deeptrace/scoring/internal/model"
	"github.com/deeptrace/scoring/internal/rules"
	"github.com/deeptrace/scoring/internal/store"
)

// maxEventListLimit caps page sizes on the event listing endpoint.
const maxEventListLimit = 100

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	service *engine.Service
	log     *store.EventLog
	rules   *rules.Loader
	logger  *slog.Logger
}

// NewServer creates the HTTP server facade.
func NewServer(service *engine.Service, log *store.EventLog, loader *rules.Loader, logger *slog.Logger) *Server {
	return &Server{service: service, log: log, rules: loader, logger: logger}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", s.handleCreateEvent)
		r.Get("/events", s.handleListEvents)
		r.Get("/rules", s.handleListRules)
	})
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// handleCreateEvent accepts one telemetry submission, scores it and
// responds with the enriched event.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var sub engine.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ev, err := s.service.Ingest(r.Context(), sub)
	switch {
	case errors.Is(err, engine.ErrInvalidSubmission):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, engine.ErrDuplicateSubmission):
		// A retried submission was already ingested; acknowledge it so the
		// agent stops resending.
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "event already recorded",
		})
		return
	case err != nil:
		s.logger.Error("event ingest failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "event recorded",
		"event":   ev,
	})
}

// handleListEvents lists recently scored events, newest first, with
// optional filters.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.Filter{
		UserID:   q.Get("user_id"),
		Type:     model.EventType(q.Get("type")),
		Severity: model.Severity(q.Get("severity")),
		Limit:    50,
	}
	if v := q.Get("flagged"); v != "" {
		flagged := v == "true"
		filter.Flagged = &flagged
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since timestamp, want RFC 3339")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit > maxEventListLimit {
			limit = maxEventListLimit
		}
		filter.Limit = limit
	}

	events := s.log.List(filter)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleListRules returns the current rule snapshot.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	snapshot := s.rules.GetSnapshot()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":   snapshot.Rules,
		"count":   len(snapshot.Rules),
		"version": snapshot.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"events":    s.log.Len(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready once a rule snapshot exists; the engine fails open otherwise.
	snapshot := s.rules.GetSnapshot()
	if snapshot.Version == 0 {
		s.writeError(w, http.StatusServiceUnavailable, "rules not loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ready",
		"rules_version": snapshot.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]interface{}{"error": msg})
}
