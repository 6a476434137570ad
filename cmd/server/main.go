// Package main is the entry point for the document engine API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"docengine/internal/core/engine"
	"docengine/internal/core/tenant"
	"docengine/internal/domain/audit"
	"docengine/internal/domain/catalogs/counterparty"
	"docengine/internal/domain/catalogs/nomenclature"
	"docengine/internal/domain/documents"
	"docengine/internal/domain/registers/stock"
	"docengine/internal/infrastructure/cache"
	v1 "docengine/internal/infrastructure/http/v1"
	"docengine/internal/infrastructure/http/v1/handlers"
	"docengine/internal/infrastructure/lock"
	"docengine/internal/infrastructure/metrics"
	"docengine/internal/infrastructure/numerator"
	"docengine/internal/infrastructure/storage/postgres"
	"docengine/pkg/config"
	"docengine/pkg/logger"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Fields:      map[string]any{"service": cfg.App.Name, "version": cfg.App.Version},
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("starting docengine server", "active_engine", cfg.Engine.Active)

	// --- Metrics ---
	m := metrics.New()

	// --- Engines ---
	engines, err := openEngines(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open engines", "error", err)
	}
	selector, err := engine.NewSelector(cfg.Engine.Active, engines...)
	if err != nil {
		log.Fatalw("failed to select engine", "error", err)
	}
	defer func() {
		if err := selector.Close(); err != nil {
			log.Warnw("engine close failed", "error", err)
		}
	}()
	m.SetActiveEngine(cfg.Engine.Active)
	selector.OnSwitch(m.ObserveEngineSwitch)
	invoker := engine.NewInvoker(selector, m)

	// --- Meta database (tenants + reconciliation journal) ---
	var (
		metaPool   *postgres.Pool
		metaPinger handlers.Pinger
	)
	if cfg.Tenants.MetaDSN != "" {
		pc := postgres.DefaultPoolConfig(cfg.Tenants.MetaDSN)
		pc.ApplicationName = cfg.App.Name + "-meta"
		pc.MaxConns = 5
		metaPool, err = postgres.NewPool(ctx, pc)
		if err != nil {
			log.Fatalw("failed to connect to meta database", "error", err)
		}
		defer metaPool.Close()
		metaPinger = metaPool
		log.Info("meta database connection established")
	}

	// --- Redis (optional) ---
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warnw("redis unreachable, continuing without shared cache", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	// --- Tenants ---
	var registry tenant.Registry
	if metaPool != nil {
		registry = tenant.NewPostgresRegistry(metaPool)
	} else {
		registry, err = tenant.NewStaticRegistry(cfg.Tenants.Static...)
		if err != nil {
			log.Fatalw("invalid static tenant list", "error", err)
		}
	}
	var tenantCache *cache.TenantCache
	if rdb != nil {
		tenantCache = cache.NewTenantCache(registry, rdb, cfg.Redis.TenantTTL)
		registry = tenantCache
	}

	resolverCfg := tenant.DefaultResolverConfig()
	resolverCfg.CacheTTL = cfg.Tenants.CacheTTL
	resolver := tenant.NewResolver(resolverCfg, registry, log)
	defer resolver.Close()

	if err := resolver.Prewarm(ctx); err != nil {
		log.Warnw("failed to prewarm tenants", "error", err)
	}

	if metaPool != nil && cfg.Tenants.Listen {
		listener := cache.NewTenantListener(metaPool.Pool)
		listener.OnInvalidate(cache.Invalidator(resolver, tenantCache))
		listener.Start(ctx)
		defer listener.Stop()
	}

	// --- Reconciliation journal ---
	var journal audit.Journal = audit.NopJournal{}
	if metaPool != nil && cfg.Journal.Enabled {
		j, err := postgres.NewJournal(metaPool)
		if err != nil {
			log.Fatalw("failed to create journal", "error", err)
		}
		j.SetCompressThreshold(cfg.Journal.CompressThreshold)
		journal = j
	} else {
		log.Warn("reconciliation journal disabled")
	}

	// --- Creation lock (degraded mode only) ---
	var locker documents.Locker
	if cfg.Lock.Enabled && rdb != nil {
		locker = lock.NewRedisLocker(rdb, lock.Config{
			TTL:     cfg.Lock.TTL,
			Wait:    cfg.Lock.Wait,
			Retries: cfg.Lock.Retries,
		})
	}

	// --- Document service ---
	loc, err := cfg.App.Location()
	if err != nil {
		log.Fatalw("invalid time zone", "error", err)
	}
	docs := documents.NewService(documents.ServiceConfig{
		Invoker:   invoker,
		Kinds:     cfg.Kinds,
		Parties:   counterparty.NewService(counterparty.NewEngineRepository(invoker)),
		Articles:  nomenclature.NewService(nomenclature.NewEngineRepository(invoker)),
		Numerator: numerator.New(invoker),
		Ledger:    stock.NewLedger(invoker, journal, m),
		Journal:   journal,
		Locker:    locker,
		Metrics:   m,
		Now:       func() time.Time { return time.Now().In(loc) },
	})

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Selector:   selector,
		Resolver:   resolver,
		Documents:  docs,
		Logger:     log,
		MetaPinger: metaPinger,
		AdminToken: cfg.Admin.Token,
		Location:   loc,
		Version:    cfg.App.Version,
		Debug:      cfg.App.IsDevelopment(),
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = m
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr, "engines", selector.Available())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
