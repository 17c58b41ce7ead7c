package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithRequestID tags the context logger with the redirect's request id.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	return with(ctx, "req_id", reqID)
}

// WithFlow tags the context logger with the verification flow code.
func WithFlow(ctx context.Context, flowCode string) context.Context {
	return with(ctx, "flow", flowCode)
}

func with(ctx context.Context, args ...any) context.Context {
	return WithContext(ctx, FromContext(ctx).With(args...))
}
