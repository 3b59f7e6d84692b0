package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakePinger struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("ping without deadline")
	}
	if p.fail.Load() {
		return errors.New("store down")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func dialHealth(t *testing.T, srv *grpc.Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestHealthReporter_FollowsPinger(t *testing.T) {
	pinger := &fakePinger{}
	reporter := NewHealthReporter(pinger, time.Minute, discardLogger())
	client := dialHealth(t, NewServer(reporter, time.Second))
	ctx := context.Background()

	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.Status
	}

	if got := status(AppointmentsService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %s, want NOT_SERVING", got)
	}

	reporter.Check(ctx)
	for _, svc := range []string{"", AppointmentsService} {
		if got := status(svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("status(%q) = %s, want SERVING", svc, got)
		}
	}

	pinger.fail.Store(true)
	if got := reporter.Check(ctx); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("Check = %s, want NOT_SERVING", got)
	}
	if got := status(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %s, want NOT_SERVING", got)
	}
}

func TestHealthReporter_NilPingerServes(t *testing.T) {
	reporter := NewHealthReporter(nil, 0, discardLogger())
	if got := reporter.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("Check = %s, want SERVING", got)
	}
}

func TestHealthReporter_RunStopsOnCancel(t *testing.T) {
	pinger := &fakePinger{}
	reporter := NewHealthReporter(pinger, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reporter.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pinger.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("pinger called %d times, want at least 2", pinger.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	resp, err := reporter.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: AppointmentsService})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after shutdown = %s, want NOT_SERVING", resp.Status)
	}
}

func TestDefaultRequestTimeoutInterceptor(t *testing.T) {
	interceptor := defaultRequestTimeoutInterceptor(time.Second)

	var gotDeadline time.Time
	handler := func(ctx context.Context, req any) (any, error) {
		gotDeadline, _ = ctx.Deadline()
		return nil, nil
	}

	before := time.Now()
	if _, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if gotDeadline.IsZero() || gotDeadline.Before(before) || gotDeadline.After(before.Add(2*time.Second)) {
		t.Fatalf("deadline = %v, want about one second from %v", gotDeadline, before)
	}

	want := time.Now().Add(time.Hour)
	ctx, cancel := context.WithDeadline(context.Background(), want)
	defer cancel()
	if _, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if !gotDeadline.Equal(want) {
		t.Fatalf("deadline = %v, want caller deadline %v", gotDeadline, want)
	}
}
