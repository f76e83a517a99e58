// Package router assembles the HTTP surface: the gateway webhook, the
// live booking feed and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atendeai/booking-engine/internal/events"
	"github.com/atendeai/booking-engine/internal/webhook"
	"github.com/atendeai/booking-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *webhook.Handler
	ViewerHandler  *events.ViewerHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.WebhookHandler != nil {
		r.Post("/webhook/{instanceName}", cfg.WebhookHandler.ServeHTTP)
	}
	if cfg.ViewerHandler != nil {
		r.Get("/events/ws", cfg.ViewerHandler.ServeHTTP)
	}

	return r
}
