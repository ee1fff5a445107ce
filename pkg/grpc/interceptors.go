package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"marketplace/pkg/logger"
)

const (
	// TraceIDMetadataKey is the metadata key for trace ID
	TraceIDMetadataKey = "x-trace-id"

	healthServicePrefix = "/grpc.health.v1.Health/"
)

// UnaryServerInterceptor attaches a trace id and deadline to every call and
// logs it. Health checks arrive every few seconds, so successful ones are
// logged at debug.
func UnaryServerInterceptor(log *logger.Logger, timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		ctx = withTraceID(ctx)

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		resp, err := handler(ctx, req)
		logCall(ctx, log, info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

// StreamServerInterceptor traces and logs streams such as Health/Watch
func StreamServerInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		ctx := withTraceID(ss.Context())

		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		logCall(ctx, log, info.FullMethod, time.Since(start), err)
		return err
	}
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context {
	return s.ctx
}

func logCall(ctx context.Context, log *logger.Logger, method string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.Duration("duration", duration),
	}
	l := log.WithContext(ctx)
	switch {
	case err != nil:
		l.Warn("grpc call failed", append(fields, zap.String("grpc_code", status.Code(err).String()), zap.Error(err))...)
	case strings.HasPrefix(method, healthServicePrefix):
		l.Debug("grpc health check", fields...)
	default:
		l.Info("grpc call completed", fields...)
	}
}

func withTraceID(ctx context.Context) context.Context {
	traceID := extractTraceID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return logger.WithTraceIDContext(ctx, traceID)
}

func extractTraceID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get(TraceIDMetadataKey)
	if len(values) > 0 {
		return values[0]
	}
	return ""
}
