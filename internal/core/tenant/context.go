package tenant

import (
	"context"

	appctx "docengine/internal/core/context"
)

type ctxKey int

const tenantKey ctxKey = iota

// WithTenant stores tenant info in context and labels the request scope.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	ctx = context.WithValue(ctx, tenantKey, t)
	return appctx.WithTenantSchema(ctx, t.Schema)
}

// GetTenant retrieves tenant from context.
func GetTenant(ctx context.Context) *Tenant {
	t, _ := ctx.Value(tenantKey).(*Tenant)
	return t
}

// SchemaFromContext returns the resolved schema or ErrNoTenantInContext.
func SchemaFromContext(ctx context.Context) (string, error) {
	if t := GetTenant(ctx); t != nil {
		return t.Schema, nil
	}
	return "", ErrNoTenantInContext
}
