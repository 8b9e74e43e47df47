// Package logging - Correlation id propagation
// Every stage call carries a correlation id in its context; every log
// record emitted on that path carries the same id.
package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const correlationKey contextKey = iota

// CorrelationHeader is the HTTP header used to propagate the id downstream.
const CorrelationHeader = "X-Correlation-Id"

// WithCorrelation returns a context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID extracts the correlation id from the context, if any.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns a logger annotated with the context's correlation id.
func FromContext(ctx context.Context) *zap.Logger {
	if id := CorrelationID(ctx); id != "" {
		return Logger.With(zap.String("correlation_id", id))
	}
	return Logger
}
