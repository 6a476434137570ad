package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"docengine/pkg/logger"
)

// ResolverConfig configures Resolver caching.
type ResolverConfig struct {
	// CacheTTL is how long a resolved tenant is reused (0 = no caching).
	CacheTTL time.Duration

	// MaxEntries caps the cache size (0 = unlimited).
	MaxEntries int
}

// DefaultResolverConfig returns production-safe defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CacheTTL:   5 * time.Minute,
		MaxEntries: 1000,
	}
}

type cachedTenant struct {
	tenant    *Tenant
	expiresAt int64 // unix nano
}

// Resolver maps inbound tenant identifiers to active tenants.
// It is the only gate that guarantees a schema name is safe to quote.
// Thread-safe for concurrent access.
type Resolver struct {
	config   ResolverConfig
	registry Registry

	cache   sync.Map // map[schema]*cachedTenant
	entries atomic.Int32
	hits    atomic.Int64
	misses  atomic.Int64

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewResolver creates a resolver over registry.
func NewResolver(cfg ResolverConfig, registry Registry, log *logger.Logger) *Resolver {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		config:   cfg,
		registry: registry,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.WithComponent("tenant-resolver"),
	}

	if cfg.CacheTTL > 0 {
		r.wg.Add(1)
		go r.evictionLoop()
	}
	return r
}

// Resolve validates id and returns the active tenant it names.
// Malformed, unknown and inactive identifiers all yield ErrTenantNotFound.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Tenant, error) {
	if err := ValidateSchema(id); err != nil {
		return nil, err
	}

	// Fast path: cached
	if t, ok := r.cached(id); ok {
		r.hits.Add(1)
		return t, nil
	}
	r.misses.Add(1)

	t, err := r.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
		}
		return nil, fmt.Errorf("tenant lookup failed: %w", err)
	}
	if !t.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTenantNotFound, id, t.Status)
	}
	// Downstream quoting relies on the validated identifier only.
	t.Schema = id

	r.store(id, t)
	return t, nil
}

// ResolveParts composes the schema from a fiscal year and business unit, then resolves it.
func (r *Resolver) ResolveParts(ctx context.Context, year, businessUnit string) (*Tenant, error) {
	schema, err := ComposeSchema(year, businessUnit)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, schema)
}

// Invalidate drops a cached tenant.
func (r *Resolver) Invalidate(schema string) {
	if _, loaded := r.cache.LoadAndDelete(schema); loaded {
		r.entries.Add(-1)
	}
}

// Flush drops every cached tenant.
func (r *Resolver) Flush() {
	r.cache.Range(func(key, _ any) bool {
		r.Invalidate(key.(string))
		return true
	})
}

func (r *Resolver) cached(id string) (*Tenant, bool) {
	if r.config.CacheTTL <= 0 {
		return nil, false
	}
	val, ok := r.cache.Load(id)
	if !ok {
		return nil, false
	}
	ct := val.(*cachedTenant)
	if r.now().UnixNano() >= ct.expiresAt {
		r.Invalidate(id)
		return nil, false
	}
	return ct.tenant, true
}

func (r *Resolver) store(id string, t *Tenant) {
	if r.config.CacheTTL <= 0 {
		return
	}
	if r.config.MaxEntries > 0 && int(r.entries.Load()) >= r.config.MaxEntries {
		return
	}
	ct := &cachedTenant{tenant: t, expiresAt: r.now().Add(r.config.CacheTTL).UnixNano()}
	if _, loaded := r.cache.Swap(id, ct); !loaded {
		r.entries.Add(1)
	}
}

// evictionLoop drops expired entries periodically.
func (r *Resolver) evictionLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CacheTTL)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

func (r *Resolver) evictExpired() {
	now := r.now().UnixNano()
	var evicted int
	r.cache.Range(func(key, value any) bool {
		if now >= value.(*cachedTenant).expiresAt {
			r.Invalidate(key.(string))
			evicted++
		}
		return true
	})
	if evicted > 0 {
		r.log.Debugw("evicted expired tenants", "count", evicted, "cached", r.entries.Load())
	}
}

// Prewarm loads every active tenant into the cache.
func (r *Resolver) Prewarm(ctx context.Context) error {
	tenants, err := r.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}
	for _, t := range tenants {
		if ValidateSchema(t.Schema) != nil {
			r.log.Warnw("skipping tenant with malformed schema", "schema", t.Schema)
			continue
		}
		r.store(t.Schema, t)
	}
	r.log.Infow("tenant cache prewarmed", "tenant_count", len(tenants))
	return nil
}

// Stats returns cache statistics.
func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		Cached: int(r.entries.Load()),
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}
}

// ResolverStats contains resolver runtime statistics.
type ResolverStats struct {
	Cached int   `json:"cached"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Close stops background workers.
func (r *Resolver) Close() {
	r.cancel()
	r.wg.Wait()
}
