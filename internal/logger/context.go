package logger

import "context"

// contextKey is unexported so no other package can collide with it.
type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores a request ID on the context. The HTTP middleware
// sets it so fusion-run log lines correlate with the triggering API call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the stored request ID, or "" when the context did not
// come through the HTTP layer.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
