package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

type correlationKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithCorrelationID stores the correlation id on the context and binds it to
// the contextual logger so every log line of the request carries it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, correlationKey{}, id)
	l := FromContext(ctx)
	return WithContext(ctx, l.With("correlation_id", id))
}

// CorrelationID returns the correlation id carried by the context, or an
// empty string when none was attached.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
