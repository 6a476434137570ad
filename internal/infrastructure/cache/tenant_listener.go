package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docengine/internal/core/tenant"
	"docengine/pkg/logger"
)

// TenantsChannel is the NOTIFY channel the meta database signals on
// when a tenant row changes. The payload is the schema name.
const TenantsChannel = tenant.NotifyChannel

// InvalidationListener is called with the schema that changed.
// An empty schema means every tenant may have changed.
type InvalidationListener func(ctx context.Context, schema string)

// TenantListener drops cached tenants on PostgreSQL NOTIFY events,
// so a closed fiscal year stops resolving without waiting for the TTL.
type TenantListener struct {
	pool *pgxpool.Pool

	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewTenantListener creates a listener on the meta database pool.
func NewTenantListener(pool *pgxpool.Pool) *TenantListener {
	return &TenantListener{pool: pool}
}

// OnInvalidate registers a listener. Must be called before Start.
func (l *TenantListener) OnInvalidate(fn InvalidationListener) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Start begins listening in the background.
func (l *TenantListener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
}

// Stop gracefully stops the listener.
func (l *TenantListener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
}

func (l *TenantListener) listenLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(l.ctx, "LISTEN "+TenantsChannel); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "channel", TenantsChannel, "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}
		logger.Info(l.ctx, "listening for tenant changes", "channel", TenantsChannel)

		l.waitForNotifications(conn)
		conn.Release()
	}
}

func (l *TenantListener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				return
			}
			continue
		}
		l.handle(l.ctx, n.Payload)
	}
}

// handle fans a notification out to the listeners, recovering panics.
func (l *TenantListener) handle(ctx context.Context, payload string) {
	schema := strings.TrimSpace(payload)
	logger.Debug(ctx, "tenant changed", "schema", schema)

	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()
	for _, fn := range l.listeners {
		func(fn InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "tenant listener panic recovered", "schema", schema, "panic", r)
				}
			}()
			fn(ctx, schema)
		}(fn)
	}
}
