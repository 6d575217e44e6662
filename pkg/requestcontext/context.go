// Package requestcontext carries request-scoped values past the HTTP layer.
// Middleware sets them; services read them without importing net/http.
package requestcontext

import (
	"context"
	"time"
)

type (
	clientIPKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// ClientIP is only ever written to security audit events, never next to a vote.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// RequestID is the correlation id echoed in X-Request-ID and every log line.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request's pinned time so that expiry checks, nonce
// consumption and timestamp bucketing agree within one request. Without a
// pinned time it falls back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time. Tests use it to fix the clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
