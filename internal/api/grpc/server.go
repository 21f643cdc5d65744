// Package grpcapi serves gRPC health and reflection so orchestrators and
// grpcurl can probe the service.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"live-transcription-service/internal/observability"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
)

// SessionService is the health service name reporting whether a transcription
// session is running.
const SessionService = "live_transcription.Session"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    zerolog.Logger
}

// New builds the gRPC server with health, reflection and the logging/metrics
// interceptors. session tags call logs with the running session.
func New(m *metrics.Metrics, session observability.SessionFunc) *Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m, session)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m, session)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(g, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(SessionService, healthpb.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{grpc: g, health: healthServer, log: logging.WithComponent("grpc")}
}

// SetSessionServing reports whether a transcription session is active.
func (s *Server) SetSessionServing(active bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if active {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(SessionService, st)
}

// Serve blocks serving lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
