package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext contains request tracing information.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns trace ID from context or generates new one.
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return uuid.New().String()
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext creates a new TraceContext with generated IDs.
// Used by background tools that have no inbound request to inherit from.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		SpanID:    uuid.New().String()[:16],
		RequestID: uuid.New().String(),
	}
}

// Detach returns a background context that keeps trace and request scope
// values of ctx but drops its deadline and cancellation.
// Used for best-effort bookkeeping that must outlive a cancelled request.
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if t := GetTrace(ctx); t != nil {
		out = WithTrace(out, t)
	}
	scope := GetRequestScope(ctx)
	if scope.TenantSchema != "" {
		out = WithTenantSchema(out, scope.TenantSchema)
	}
	if scope.Engine != "" {
		out = WithEngineName(out, scope.Engine)
	}
	return out
}
