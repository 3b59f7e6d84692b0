package grpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bookings/backend/internal/store"
)

// AppointmentsService is the health service name reported next to the
// overall server status.
const AppointmentsService = "bookings.v1.Appointments"

const defaultHealthInterval = 15 * time.Second

// HealthReporter keeps a grpc health server in step with store reachability.
type HealthReporter struct {
	server   *health.Server
	pinger   store.Pinger
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthReporter(pinger store.Pinger, interval time.Duration, log *slog.Logger) *HealthReporter {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	r := &HealthReporter{
		server:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		log:      log.With(slog.String("component", "grpc.health")),
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
	r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Server is the health implementation to register on a grpc server.
func (r *HealthReporter) Server() healthpb.HealthServer {
	return r.server
}

// Check pings the store once and publishes the resulting status.
func (r *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if r.pinger != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.pinger.Ping(ctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if r.last != status {
				r.log.Warn("store unreachable", slog.Any("err", err))
			}
		}
	}
	if r.last != status && status == healthpb.HealthCheckResponse_SERVING {
		r.log.Info("store reachable")
	}
	r.set(status)
	return status
}

// Run checks immediately and then on every interval until ctx is done,
// after which every service is marked NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	r.Check(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

func (r *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.last = status
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(AppointmentsService, status)
}
