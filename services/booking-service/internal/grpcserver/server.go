// Package grpcserver exposes the standard gRPC health service for the
// booking service, driven by the same dependency checks as /readyz.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/gobarber/gobarber/libs/grpcx"
	"github.com/gobarber/gobarber/libs/runtime"
)

// ServiceName is the health service entry reported alongside the overall "" entry.
const ServiceName = "gobarber.booking.v1.Appointments"

type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	checks  []runtime.ReadyCheck
	logger  *slog.Logger
	timeout time.Duration
}

func New(logger *slog.Logger, checks ...runtime.ReadyCheck) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcx.UnaryServerRequestIDInterceptor(),
			grpcx.UnaryServerLoggingInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{
		grpc:    srv,
		health:  hs,
		checks:  checks,
		logger:  logger.With("component", "grpc"),
		timeout: 2 * time.Second,
	}
}

// Refresh runs every check and publishes SERVING only when all pass.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.Check(checkCtx)
		cancel()
		if err != nil {
			s.logger.Warn("dependency check failed", "check", c.Name, "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Serve accepts connections on lis and re-runs the checks every interval
// until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()

	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}
