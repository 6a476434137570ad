package numerator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
	"docengine/internal/core/engine/enginetest"
)

const schema = "2025_bu01"

func setup(t *testing.T) (*enginetest.Memory, *Service) {
	t.Helper()
	mem := enginetest.New(engine.Supabase)
	mem.AddTenant(schema)
	sel, err := engine.NewSelector(engine.Supabase, mem)
	require.NoError(t, err)
	return mem, New(engine.NewInvoker(sel, nil))
}

func TestAllocate_Sequential(t *testing.T) {
	_, svc := setup(t)
	bl := dockind.DefaultTable().MustLookup(dockind.DeliveryNote)
	ctx := context.Background()

	for want := int64(1); want <= 10; want++ {
		got, err := svc.Allocate(ctx, schema, bl)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAllocate_PerKind(t *testing.T) {
	_, svc := setup(t)
	table := dockind.DefaultTable()
	ctx := context.Background()

	n, err := svc.Allocate(ctx, schema, table.MustLookup(dockind.Invoice))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.Allocate(ctx, schema, table.MustLookup(dockind.Proforma))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAllocate_FollowsExistingDocuments(t *testing.T) {
	mem, svc := setup(t)
	bl := dockind.DefaultTable().MustLookup(dockind.DeliveryNote)
	mem.SeedDocument(schema, dockind.DeliveryNote, 41, "C1")

	n, err := svc.Allocate(context.Background(), schema, bl)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestAllocate_ConcurrentCallsAreDistinct(t *testing.T) {
	_, svc := setup(t)
	bl := dockind.DefaultTable().MustLookup(dockind.DeliveryNote)

	const n = 40
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.Allocate(context.Background(), schema, bl)
			assert.NoError(t, err)
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestPeek(t *testing.T) {
	mem, svc := setup(t)
	bl := dockind.DefaultTable().MustLookup(dockind.DeliveryNote)
	ctx := context.Background()

	n, err := svc.Peek(ctx, schema, bl)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "empty kind starts at 1")

	mem.SeedDocument(schema, dockind.DeliveryNote, 7, "C1")
	n, err = svc.Peek(ctx, schema, bl)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	n, err = svc.Peek(ctx, schema, bl)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n, "peek reserves nothing")
}

func TestAllocate_UnknownSchema(t *testing.T) {
	_, svc := setup(t)
	bl := dockind.DefaultTable().MustLookup(dockind.DeliveryNote)

	_, err := svc.Allocate(context.Background(), "2019_gone", bl)
	assert.True(t, engine.IsNotFound(err))
}

func TestAllocate_EngineFailure(t *testing.T) {
	mem, svc := setup(t)
	bl := dockind.DefaultTable().MustLookup(dockind.DeliveryNote)
	mem.SetFault(engine.OpAllocateNumber, enginetest.FailAlways(engine.KindUnavailable, "connection reset"))

	_, err := svc.Allocate(context.Background(), schema, bl)
	assert.Equal(t, engine.KindUnavailable, engine.KindOf(err))
}
