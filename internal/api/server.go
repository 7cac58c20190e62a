package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"gardiens/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServiceName is the service name reported next to the overall status.
const HealthServiceName = "gardiens.booking"

// Pinger is anything whose liveness decides readiness, usually the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCServer serves the standard health protocol. Status follows the
// database: SERVING while it answers pings, NOT_SERVING otherwise.
type GRPCServer struct {
	cfg      *config.APIConfig
	db       Pinger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, db Pinger, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return newGRPCServer(cfg, db, logger, lis), nil
}

func newGRPCServer(cfg *config.APIConfig, db Pinger, logger *zerolog.Logger, lis net.Listener) *GRPCServer {
	auth := NewAuthInterceptor(cfg)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoveryUnaryInterceptor(logger),
		LoggingUnaryInterceptor(logger),
		auth.Unary(),
	))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	serverLogger := zerolog.Nop()
	if logger != nil {
		serverLogger = logger.With().Str("component", "grpc").Logger()
	}

	return &GRPCServer{
		cfg:      cfg,
		db:       db,
		server:   grpcServer,
		health:   hs,
		listener: lis,
		log:      serverLogger,
	}
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// CheckHealth pings the database once and publishes the result.
func (s *GRPCServer) CheckHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn().Err(err).Msg("database ping failed")
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(HealthServiceName, st)
	return st
}

// WatchHealth refreshes the health status every interval until ctx ends.
func (s *GRPCServer) WatchHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			s.CheckHealth(pingCtx)
			cancel()
		}
	}
}

func (s *GRPCServer) Serve() error {
	s.CheckHealth(context.Background())
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
	// no-op when Serve already closed it
	_ = s.listener.Close()
}
