// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docengine/internal/core/engine"
	"docengine/internal/core/tenant"
	"docengine/internal/infrastructure/http/v1/handlers"
	"docengine/internal/infrastructure/http/v1/middleware"
	"docengine/pkg/logger"
)

// Metrics is the HTTP-facing part of the metrics collector.
type Metrics interface {
	middleware.HTTPObserver
	Handler() http.Handler
}

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Selector  *engine.Selector
	Resolver  *tenant.Resolver
	Documents handlers.DocumentService

	// Logger for request logging
	Logger *logger.Logger

	// Optional
	Metrics    Metrics
	MetaPinger handlers.Pinger
	AdminToken string
	Location   *time.Location
	Version    string
	Debug      bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.Selector, cfg.Resolver, cfg.MetaPinger, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	base := handlers.NewBaseHandler()
	v1 := router.Group("/api/v1")
	{
		admin := handlers.NewAdminHandler(base, cfg.Selector, cfg.AdminToken)
		admin.RegisterRoutes(v1.Group("/admin"))

		scoped := v1.Group("")
		scoped.Use(middleware.Tenant(cfg.Resolver, cfg.Selector))

		docs := handlers.NewDocumentHandler(base, cfg.Documents, cfg.Location)
		docs.RegisterRoutes(scoped.Group("/documents"))
	}

	return router
}
