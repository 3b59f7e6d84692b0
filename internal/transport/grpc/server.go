// Package grpc exposes the standard grpc health service for the bookings
// server.
package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a grpc server with the health service registered and a
// default deadline applied to unary calls that arrive without one.
func NewServer(reporter *HealthReporter, requestTimeout time.Duration) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(requestTimeout)),
	)
	healthpb.RegisterHealthServer(s, reporter.Server())
	return s
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}
