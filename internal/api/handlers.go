package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/maltedev/catalog-scraper/internal/pipeline"
)

// StatusSource reports the progress of the current run.
type StatusSource interface {
	Snapshot() pipeline.Stats
}

type Handlers struct {
	status  StatusSource
	metrics http.Handler
	started time.Time
	logger  *slog.Logger
}

func NewHandlers(status StatusSource, metrics http.Handler, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Handlers{
		status:  status,
		metrics: metrics,
		started: time.Now(),
		logger:  logger.With("component", "api"),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Uptime string `json:"uptime"`
}

// Health reports whether the run is still alive. A failed run answers 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.status.Snapshot()

	resp := HealthResponse{
		Status: "ok",
		State:  string(stats.State),
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	status := http.StatusOK
	if stats.State == pipeline.StateFailed {
		resp.Status = "error"
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, resp)
}

// Status returns the run statistics.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.status.Snapshot())
}

// Router wires the handlers with the middleware stack.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Method(http.MethodGet, "/metrics", h.metrics)

	return r
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
