package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"bookings/backend/internal/config"
	"bookings/backend/internal/service/appointments"
	"bookings/backend/internal/store"
	"bookings/backend/internal/store/memory"
	"bookings/backend/internal/store/postgres"
	"bookings/backend/internal/telemetry"
	grpcTransport "bookings/backend/internal/transport/grpc"
	"bookings/backend/internal/transport/httpapi"
)

type repository interface {
	store.AppointmentRepository
	store.Pinger
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "bookings-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "bookings-server"),
	)
	slog.SetDefault(log)

	log.Info(
		"starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("storage", cfg.StorageDriver),
		slog.String("timezone", cfg.Schedule.Location.String()),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil {
		stop()
		os.Exit(1)
	}
}

// run serves until ctx is done or a server fails. The store is closed on
// every return path.
func run(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	repo, closeRepo, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	svc := appointments.NewService(repo,
		appointments.WithPolicy(cfg.Schedule),
		appointments.WithLogger(log),
	)
	metrics := telemetry.NewMetrics()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(svc, repo, metrics, log, httpapi.Config{RequestTimeout: cfg.HTTPRequestTimeout}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := grpcTransport.NewHealthReporter(repo, cfg.GRPCHealthInterval, log)
	grpcServer := grpcTransport.NewServer(health, cfg.GRPCRequestTimeout)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		log.Error("http listen failed", slog.Any("err", err), slog.String("http_addr", cfg.HTTPAddr))
		return err
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go health.Run(healthCtx)

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		errCh <- httpServer.Serve(httpLis)
	}()

	log.Info("servers started", slog.String("http_addr", httpLis.Addr().String()), slog.String("grpc_addr", grpcLis.Addr().String()))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", slog.Any("err", err))
			runErr = err
		}
	}

	stopHealth()
	shutdown(log, httpServer, grpcServer, cfg.ShutdownTimeout)
	return runErr
}

var openStore = openRepository

// openRepository selects the store backend. Failures are logged here and
// returned so main can exit.
func openRepository(ctx context.Context, log *slog.Logger, cfg config.Config) (repository, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage; appointments are lost on restart")
		return memory.NewAppointmentRepo(), func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, nil, err
	}

	closeDB := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}

	if cfg.DBAutoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := postgres.Migrate(migrateCtx, db)
		cancel()
		if err != nil {
			log.Error("database migration failed", slog.Any("err", err))
			closeDB()
			return nil, nil, err
		}
		log.Info("database schema up to date")
	}

	return postgres.NewAppointmentRepo(db), closeDB, nil
}

func shutdown(log *slog.Logger, hs *http.Server, gs *grpc.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := hs.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = hs.Close()
	} else {
		log.Info("http server stopped")
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		gs.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
