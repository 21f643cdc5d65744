package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"live-transcription-service/internal/observability/metrics"
)

// SessionFunc returns the id of the running transcription session, or "".
type SessionFunc func() string

// callLogger tags a gRPC call with its method and the session it observed.
func callLogger(method string, session SessionFunc) zerolog.Logger {
	ctx := log.With().
		Str("component", "grpc").
		Str("method", method)
	if session != nil {
		if id := session(); id != "" {
			ctx = ctx.Str("sessionId", id)
		}
	}
	return ctx.Logger()
}

// UnaryServerInterceptor records every unary call by method and status code.
// Health probes are frequent, so successful calls log at debug.
func UnaryServerInterceptor(m *metrics.Metrics, session SessionFunc) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		m.RecordGRPCUnary(info.FullMethod, code.String())

		logger := callLogger(info.FullMethod, session)
		event := logger.Debug()
		if code != codes.OK {
			event = logger.Warn().Err(err)
		}
		event.
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC call")

		return resp, err
	}
}

// StreamServerInterceptor tracks open streams, such as health watches.
func StreamServerInterceptor(m *metrics.Metrics, session SessionFunc) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		m.RecordGRPCStreamStart()

		err := handler(srv, ss)

		duration := time.Since(start)
		m.RecordGRPCStreamEnd(err == nil, duration.Seconds())

		logger := callLogger(info.FullMethod, session)
		logger.Info().
			Str("code", status.Code(err).String()).
			Dur("duration", duration).
			Msg("gRPC stream ended")

		return err
	}
}
