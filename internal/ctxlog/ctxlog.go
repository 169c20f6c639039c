// Package ctxlog carries the job's *slog.Logger through a context.Context so
// stages, backends and notifiers log with the same handler and attributes.
package ctxlog

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithLogger stores logger in ctx. A nil logger leaves ctx untouched.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// WithJob tags every later record logged through ctx with job_id.
func WithJob(ctx context.Context, jobID string) context.Context {
	return With(ctx, "job_id", jobID)
}

// With derives a logger carrying args from the one in ctx.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return logger
}
