package logger

import (
	"context"

	"go.uber.org/zap"

	"posagent/pkg/trace"
)

// NewLogger builds the production logger used by every component.
// The logger is constructed once in main and passed down explicitly.
func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace enriches a logger with the trace_id from ctx, if any.
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
