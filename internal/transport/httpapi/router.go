// Package httpapi serves the appointments API over HTTP with JSON bodies.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bookings/backend/internal/store"
	"bookings/backend/internal/telemetry"
)

type Config struct {
	RequestTimeout time.Duration
}

// NewRouter wires the API routes, health and metrics endpoints.
func NewRouter(svc appointmentsService, pinger store.Pinger, metrics *telemetry.Metrics, log *slog.Logger, cfg Config) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	h := NewAppointmentsHandler(svc, metrics, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(accessLog(log))
	r.Use(defaultRequestTimeout(cfg.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{
			StatusCode: http.StatusNotFound,
			Code:       codeNotFound,
			Error:      "Route not found",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{
			StatusCode: http.StatusMethodNotAllowed,
			Code:       codeMethodNotAllowed,
			Error:      "Method not allowed",
		})
	})

	r.Get("/healthz", healthz(pinger))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/appointments", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/available", h.Available)
		r.Delete("/{id}", h.Cancel)
	})

	return r
}

// defaultRequestTimeout bounds requests that arrive without a deadline.
func defaultRequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	log = log.With(slog.String("component", "http.access"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func healthz(pinger store.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, envelope{
					StatusCode: http.StatusServiceUnavailable,
					Code:       codeStorageError,
					Error:      "storage unavailable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, envelope{StatusCode: http.StatusOK, Success: true, Message: "ok"})
	}
}
