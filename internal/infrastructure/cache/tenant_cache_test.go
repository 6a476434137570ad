package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/tenant"
)

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failAll error

	scanKeys []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return redis.NewStringResult("", f.failAll)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return redis.NewStatusResult("", f.failAll)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan pages through the keys that matched when the iteration started, one
// key per page, so callers must follow the cursor.
func (f *fakeRedis) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return redis.NewScanCmdResult(nil, 0, f.failAll)
	}
	if cursor == 0 {
		prefix := strings.TrimSuffix(match, "*")
		f.scanKeys = f.scanKeys[:0]
		for k := range f.data {
			if strings.HasPrefix(k, prefix) {
				f.scanKeys = append(f.scanKeys, k)
			}
		}
		sort.Strings(f.scanKeys)
	}
	if int(cursor) >= len(f.scanKeys) {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	next := cursor + 1
	if int(next) >= len(f.scanKeys) {
		next = 0
	}
	return redis.NewScanCmdResult([]string{f.scanKeys[cursor]}, next, nil)
}

type countingRegistry struct {
	tenant.Registry
	gets int
}

func (r *countingRegistry) Get(ctx context.Context, schema string) (*tenant.Tenant, error) {
	r.gets++
	return r.Registry.Get(ctx, schema)
}

func newCountingRegistry(t *testing.T, schemas ...string) *countingRegistry {
	t.Helper()
	static, err := tenant.NewStaticRegistry(schemas...)
	require.NoError(t, err)
	return &countingRegistry{Registry: static}
}

func TestTenantCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	reg := newCountingRegistry(t, "2025_bu01")
	rdb := newFakeRedis()
	c := NewTenantCache(reg, rdb, time.Minute)

	first, err := c.Get(ctx, "2025_bu01")
	require.NoError(t, err)
	second, err := c.Get(ctx, "2025_bu01")
	require.NoError(t, err)

	assert.Equal(t, 1, reg.gets)
	assert.Equal(t, first.Schema, second.Schema)
	assert.Equal(t, 2025, second.FiscalYear)
	assert.Equal(t, "bu01", second.BusinessUnit)
	assert.Equal(t, time.Minute, rdb.ttls["docengine:tenant:2025_bu01"])
}

func TestTenantCache_UnknownIsNotCached(t *testing.T) {
	ctx := context.Background()
	reg := newCountingRegistry(t, "2025_bu01")
	rdb := newFakeRedis()
	c := NewTenantCache(reg, rdb, time.Minute)

	_, err := c.Get(ctx, "2024_bu09")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	assert.Empty(t, rdb.data)
}

func TestTenantCache_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	reg := newCountingRegistry(t, "2025_bu01")
	rdb := newFakeRedis()
	rdb.failAll = errors.New("connection refused")
	c := NewTenantCache(reg, rdb, time.Minute)

	got, err := c.Get(ctx, "2025_bu01")
	require.NoError(t, err)
	assert.Equal(t, "2025_bu01", got.Schema)

	_, err = c.Get(ctx, "2025_bu01")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.gets)
}

func TestTenantCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	reg := newCountingRegistry(t, "2025_bu01")
	rdb := newFakeRedis()
	c := NewTenantCache(reg, rdb, time.Minute)

	_, err := c.Get(ctx, "2025_bu01")
	require.NoError(t, err)
	c.Invalidate(ctx, "2025_bu01")
	_, err = c.Get(ctx, "2025_bu01")
	require.NoError(t, err)

	assert.Equal(t, 2, reg.gets)
}

func TestTenantListener_HandleFansOutAndRecovers(t *testing.T) {
	l := NewTenantListener(nil)
	var got []string
	l.OnInvalidate(func(context.Context, string) { panic("boom") })
	l.OnInvalidate(func(_ context.Context, schema string) { got = append(got, schema) })

	l.handle(context.Background(), " 2025_bu01 ")
	l.handle(context.Background(), "")

	assert.Equal(t, []string{"2025_bu01", ""}, got)
}

type localSpy struct {
	invalidated []string
	flushes     int
}

func (l *localSpy) Invalidate(schema string) { l.invalidated = append(l.invalidated, schema) }
func (l *localSpy) Flush()                   { l.flushes++ }

func TestInvalidator_EmptySchemaFlushesRedisToo(t *testing.T) {
	ctx := context.Background()
	reg := newCountingRegistry(t, "2025_bu01", "2025_bu02", "2024_bu01")
	rdb := newFakeRedis()
	rdb.data["other:key"] = "kept"
	c := NewTenantCache(reg, rdb, time.Minute)
	for _, s := range []string{"2025_bu01", "2025_bu02", "2024_bu01"} {
		_, err := c.Get(ctx, s)
		require.NoError(t, err)
	}
	local := &localSpy{}
	invalidate := Invalidator(local, c)

	invalidate(ctx, "")

	assert.Equal(t, 1, local.flushes)
	assert.Equal(t, map[string]string{"other:key": "kept"}, rdb.data)

	_, err := c.Get(ctx, "2025_bu01")
	require.NoError(t, err)
	assert.Equal(t, 4, reg.gets, "a flushed tenant is loaded again")
}

func TestInvalidator_SingleSchema(t *testing.T) {
	ctx := context.Background()
	reg := newCountingRegistry(t, "2025_bu01", "2025_bu02")
	rdb := newFakeRedis()
	c := NewTenantCache(reg, rdb, time.Minute)
	for _, s := range []string{"2025_bu01", "2025_bu02"} {
		_, err := c.Get(ctx, s)
		require.NoError(t, err)
	}
	local := &localSpy{}

	Invalidator(local, c)(ctx, "2025_bu01")

	assert.Equal(t, []string{"2025_bu01"}, local.invalidated)
	assert.Zero(t, local.flushes)
	assert.NotContains(t, rdb.data, "docengine:tenant:2025_bu01")
	assert.Contains(t, rdb.data, "docengine:tenant:2025_bu02")
}

func TestInvalidator_WithoutRedis(t *testing.T) {
	local := &localSpy{}
	invalidate := Invalidator(local, nil)

	invalidate(context.Background(), "2025_bu01")
	invalidate(context.Background(), "")

	assert.Equal(t, []string{"2025_bu01"}, local.invalidated)
	assert.Equal(t, 1, local.flushes)
}

func TestTenantCache_FlushRedisDown(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data["docengine:tenant:2025_bu01"] = "{}"
	rdb.failAll = errors.New("connection refused")
	c := NewTenantCache(newCountingRegistry(t), rdb, time.Minute)

	assert.NotPanics(t, func() { c.Flush(context.Background()) })
	assert.Len(t, rdb.data, 1)
}
