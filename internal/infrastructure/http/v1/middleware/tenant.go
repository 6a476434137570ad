package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"docengine/internal/core/apperror"
	"docengine/internal/core/engine"
	"docengine/internal/core/tenant"
	"docengine/pkg/logger"
)

const (
	// TenantHeader names the tenant schema directly.
	TenantHeader = "X-Tenant-Schema"
	// BusinessUnitHeader and YearHeader compose the schema "<year>_<bu>".
	BusinessUnitHeader = "X-Business-Unit"
	YearHeader         = "X-Year"
)

// Tenant middleware resolves the tenant and binds the active engine to the request.
// It must run before any engine invocation.
//
// Flow:
// 1. X-Tenant-Schema, or X-Business-Unit + X-Year
// 2. Resolve against the registry (cached)
// 3. Bind the engine once, so an engine switch never splits a request
func Tenant(resolver *tenant.Resolver, selector *engine.Selector) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			t   *tenant.Tenant
			err error
			id  string
		)
		if id = c.GetHeader(TenantHeader); id != "" {
			t, err = resolver.Resolve(ctx, id)
		} else {
			bu, year := c.GetHeader(BusinessUnitHeader), c.GetHeader(YearHeader)
			if bu == "" && year == "" {
				_ = c.Error(
					apperror.NewValidation("tenant is required").
						WithDetail("header", TenantHeader),
				)
				c.Abort()
				return
			}
			id = year + "_" + bu
			t, err = resolver.ResolveParts(ctx, year, bu)
		}

		if err != nil {
			logger.Warn(ctx, "tenant resolution failed", "tenant", id, "error", err)
			if errors.Is(err, tenant.ErrTenantNotFound) {
				_ = c.Error(apperror.NewTenantNotFound(id).WithCause(err))
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("tenant", id))
			}
			c.Abort()
			return
		}

		ctx = tenant.WithTenant(ctx, t)
		ctx = selector.Bind(ctx)
		c.Request = c.Request.WithContext(ctx)

		c.Set("tenant_schema", t.Schema)
		c.Next()
	}
}
