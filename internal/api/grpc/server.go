// Package grpcapi exposes the gRPC health service of the pipeline.
package grpcapi

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"media-transcription-pipeline/internal/observability"
)

// ServiceName is the health-checked service name.
const ServiceName = "media.transcription.Pipeline"

// Server serves gRPC health checks that follow job admission.
type Server struct {
	grpc      *grpc.Server
	health    *health.Server
	accepting func() bool
	port      string
}

// New creates the gRPC server. accepting reports whether jobs are admitted.
func New(port string, accepting func() bool) *Server {
	g := grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryServerInterceptor()))

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s := &Server{grpc: g, health: hs, accepting: accepting, port: port}
	s.sync()
	return s
}

// Start listens and serves in a goroutine.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	go func() {
		log.Info().Str("port", s.port).Msg("gRPC health server started")
		if err := s.grpc.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()
	return nil
}

// Watch refreshes the serving status every interval until ctx ends.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync()
		}
	}
}

func (s *Server) sync() {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if s.accepting != nil && !s.accepting() {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop marks the service not serving and stops gracefully.
func (s *Server) Stop() {
	log.Info().Msg("shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
