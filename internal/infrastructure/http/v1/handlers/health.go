package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"docengine/internal/core/engine"
	"docengine/internal/core/tenant"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	selector *engine.Selector
	resolver *tenant.Resolver
	meta     Pinger
	version  string
}

// NewHealthHandler creates a health handler. meta may be nil when tenants
// come from a static list.
func NewHealthHandler(selector *engine.Selector, resolver *tenant.Resolver, meta Pinger, version string) *HealthHandler {
	return &HealthHandler{selector: selector, resolver: resolver, meta: meta, version: version}
}

// Live handles liveness probe.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready pings the active engine and the meta database.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	active := h.selector.Active()

	checks := map[string]string{}
	healthy := true
	if err := active.Ping(ctx); err != nil {
		checks["engine"] = "unhealthy: " + err.Error()
		healthy = false
	} else {
		checks["engine"] = "healthy"
	}
	if h.meta != nil {
		if err := h.meta.Ping(ctx); err != nil {
			checks["meta_database"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks["meta_database"] = "healthy"
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "error", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"engine": active.Name(),
		"checks": checks,
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":       "docengine",
		"version":   h.version,
		"engine":    h.selector.Active().Name(),
		"available": h.selector.Available(),
		"tenants":   h.resolver.Stats(),
	})
}
