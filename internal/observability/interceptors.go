package observability

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"media-transcription-pipeline/internal/observability/logging"
	"media-transcription-pipeline/internal/observability/metrics"
)

// UnaryServerInterceptor counts every unary call by method and code.
// Probes that report the service unavailable are logged at warn, so a
// draining node shows up in the logs.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	logger := logging.WithComponent("grpc")
	m := metrics.DefaultMetrics

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		m.RecordGRPCCall(info.FullMethod, code.String())

		evt := logger.Debug()
		if code != codes.OK {
			evt = logger.Warn().Err(err)
		}
		evt.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC call")
		return resp, err
	}
}
