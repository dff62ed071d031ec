package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	grpcapi "media-transcription-pipeline/internal/api/grpc"
	"media-transcription-pipeline/internal/app"
	"media-transcription-pipeline/internal/config"
	httpapi "media-transcription-pipeline/internal/http"
	"media-transcription-pipeline/internal/observability"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := application.Build(ctx, app.Options{Persistence: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire pipeline")
	}
	defer components.Close()

	deps := httpapi.Deps{
		Manager:      components.Manager,
		Orchestrator: components.Orchestrator,
		Validator:    components.Validator,
	}
	if components.MemoryBlobs != nil {
		deps.Blobs = components.MemoryBlobs.Handler(httpapi.BlobsPrefix)
	}

	// Uploads stream for minutes; only headers are bounded.
	httpServer := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           httpapi.NewRouter(application, deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Service.HTTPAddr).Msg("HTTP API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	metricsServer := observability.NewServer(cfg.Observability.MetricsAddr, components.Manager.Accepting)
	metricsServer.Start()

	grpcServer := grpcapi.New(cfg.Service.GRPCPort, components.Manager.Accepting)
	if err := grpcServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}
	go grpcServer.Watch(ctx, 5*time.Second)

	<-ctx.Done()
	stop()
	application.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	// Stop admitting jobs first so health checks drain traffic.
	if err := components.Manager.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("jobs still running at shutdown deadline")
	}
	grpcServer.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("metrics shutdown")
	}
}
