package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docengine/pkg/logger"
)

// Logger logs one entry per request. Probes and scrapes go to debug.
// Tenant and engine fields come from the request context, which the
// Tenant middleware replaces inside c.Next.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"route", routeOf(c),
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if kind := c.Param("kind"); kind != "" {
			fields = append(fields, "kind", kind)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.ByType(gin.ErrorTypePrivate).String())
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case strings.HasPrefix(path, "/health/") || path == "/metrics":
			l.Debugw("http request", fields...)
		case status >= 500:
			l.Errorw("http request", fields...)
		default:
			l.Infow("http request", fields...)
		}
	}
}

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
