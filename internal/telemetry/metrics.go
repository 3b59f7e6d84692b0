// Package telemetry holds the Prometheus instruments of the bookings server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	BookingsCreated     prometheus.Counter
	BookingConflicts    prometheus.Counter
	BookingRejections   *prometheus.CounterVec
	Cancellations       prometheus.Counter
	StorageFailures     *prometheus.CounterVec
}

// NewMetrics registers all instruments on a fresh registry, so tests and
// multiple servers in one process do not collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookings",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		BookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "appointments_created_total",
			Help:      "Appointments successfully booked.",
		}),
		BookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "appointment_conflicts_total",
			Help:      "Booking attempts rejected because the slot was taken.",
		}),
		BookingRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "appointment_rejections_total",
			Help:      "Booking attempts rejected by validation, by field.",
		}, []string{"field"}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "appointments_cancelled_total",
			Help:      "Appointments cancelled.",
		}),
		StorageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "storage_failures_total",
			Help:      "Store failures by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.BookingsCreated,
		m.BookingConflicts,
		m.BookingRejections,
		m.Cancellations,
		m.StorageFailures,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// unmatchedRoute labels requests no route matched, so arbitrary paths
// cannot grow the label set.
const unmatchedRoute = "unmatched"

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
