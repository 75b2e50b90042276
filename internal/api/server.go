package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/mirador-oracle/internal/config"
)

// Server hosts the oracle control plane together with the standard health
// and reflection services.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
	grace    time.Duration
}

// NewServer binds cfg.Address and registers service on it. Extra options are
// appended after the Prometheus interceptors.
func NewServer(cfg config.ServerConfig, service OracleServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	gs := grpc.NewServer(append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, opts...)...)

	RegisterOracleServer(gs, service)
	grpc_prometheus.Register(gs)

	hs := health.NewServer()
	for _, name := range []string{"", ServiceName} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(gs, hs)

	// Oracle methods are JSON-framed, so reflection only lists them by name.
	reflection.Register(gs)

	return &Server{grpc: gs, health: hs, listener: lis, grace: cfg.GracefulTimeout}, nil
}

// Start serves until Shutdown. A graceful stop is not reported as an error.
func (s *Server) Start() error {
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown reports NOT_SERVING to health checks, drains in-flight calls and
// forces the stop once ctx is done.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

// Address is the bound listener address.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// GracefulTimeout is the configured drain budget.
func (s *Server) GracefulTimeout() time.Duration {
	return s.grace
}
