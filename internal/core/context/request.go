// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// RequestScope holds the labels resolved for a single request.
// It is read by the logger so that every entry names the tenant and engine
// that served the request.
type RequestScope struct {
	TenantSchema string
	Engine       string
}

type requestScopeKey struct{}

// WithTenantSchema records the resolved tenant schema.
func WithTenantSchema(ctx context.Context, schema string) context.Context {
	scope := GetRequestScope(ctx)
	scope.TenantSchema = schema
	return context.WithValue(ctx, requestScopeKey{}, scope)
}

// WithEngineName records the engine bound to the request.
func WithEngineName(ctx context.Context, engine string) context.Context {
	scope := GetRequestScope(ctx)
	scope.Engine = engine
	return context.WithValue(ctx, requestScopeKey{}, scope)
}

// GetRequestScope returns a copy of the scope stored in ctx.
func GetRequestScope(ctx context.Context) RequestScope {
	if v, ok := ctx.Value(requestScopeKey{}).(RequestScope); ok {
		return v
	}
	return RequestScope{}
}

// GetTenantSchema returns tenant schema from context or empty string.
func GetTenantSchema(ctx context.Context) string {
	return GetRequestScope(ctx).TenantSchema
}

// GetEngineName returns engine name from context or empty string.
func GetEngineName(ctx context.Context) string {
	return GetRequestScope(ctx).Engine
}
