package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sweepIDKey   contextKey = "sweep_id"
)

// WithRequestID stores the ops API request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithSweepID stores the current sweep's ID in the context. Outbound
// transports forward it as a correlation header.
func WithSweepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sweepIDKey, id)
}

// GetSweepID retrieves the sweep ID from the context.
func GetSweepID(ctx context.Context) string {
	id, _ := ctx.Value(sweepIDKey).(string)
	return id
}
