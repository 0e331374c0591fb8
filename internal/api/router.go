package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// NewRouter wires the interview API. gatherer backs GET /metrics; it may be nil.
func NewRouter(apiHandler *APIHandler, log zerolog.Logger, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(log))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/sessions", apiHandler.CreateSessionHandler)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", apiHandler.GetSessionHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)
			r.Post("/messages/stream", apiHandler.StreamMessageHandler)
			r.Post("/end", apiHandler.EndSessionHandler)
			r.Post("/reset", apiHandler.ResetSessionHandler)
		})

		r.Get("/conversations", apiHandler.ListConversationsHandler)
		r.Get("/conversations/{sessionID}", apiHandler.GetConversationHandler)
	})

	return r
}
