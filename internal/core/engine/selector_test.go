package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/engine"
	"docengine/internal/core/engine/enginetest"
)

const schema = "2025_bu01"

func newPair(t *testing.T) (*enginetest.Memory, *enginetest.Memory, *engine.Selector) {
	t.Helper()
	a := enginetest.New(engine.Supabase)
	b := enginetest.New(engine.MySQL)
	for _, m := range []*enginetest.Memory{a, b} {
		m.AddTenant(schema)
		m.AddClient(schema, "C1", "Client One")
	}
	sel, err := engine.NewSelector(engine.Supabase, a, b)
	require.NoError(t, err)
	return a, b, sel
}

func getClient() engine.Call {
	return engine.NewCall(engine.OpGetClient, schema, engine.Args{engine.ArgCode: "C1"})
}

func TestSelector_SetActive(t *testing.T) {
	_, _, sel := newPair(t)

	assert.Equal(t, engine.Supabase, sel.Active().Name())
	assert.Equal(t, []engine.Name{engine.MySQL, engine.Supabase}, sel.Available())

	require.NoError(t, sel.SetActive(engine.MySQL))
	assert.Equal(t, engine.MySQL, sel.Active().Name())

	err := sel.SetActive(engine.Postgres)
	assert.ErrorIs(t, err, engine.ErrUnknownEngine)
	assert.Equal(t, engine.MySQL, sel.Active().Name(), "failed switch keeps the previous engine")
}

func TestSelector_OnSwitch(t *testing.T) {
	_, _, sel := newPair(t)

	var from, to engine.Name
	sel.OnSwitch(func(f, t engine.Name) { from, to = f, t })

	require.NoError(t, sel.SetActive(engine.MySQL))
	assert.Equal(t, engine.Supabase, from)
	assert.Equal(t, engine.MySQL, to)
}

func TestNewSelector_Rejects(t *testing.T) {
	_, err := engine.NewSelector(engine.Supabase)
	assert.Error(t, err)

	a := enginetest.New(engine.Supabase)
	_, err = engine.NewSelector(engine.Supabase, a, enginetest.New(engine.Supabase))
	assert.Error(t, err)

	_, err = engine.NewSelector(engine.Postgres, a)
	assert.ErrorIs(t, err, engine.ErrUnknownEngine)
}

func TestBind_KeepsEngineForWholeRequest(t *testing.T) {
	a, b, sel := newPair(t)
	inv := engine.NewInvoker(sel, nil)

	ctx := sel.Bind(context.Background())
	require.NoError(t, sel.SetActive(engine.MySQL))

	_, err := inv.Invoke(ctx, getClient())
	require.NoError(t, err)

	assert.Equal(t, 1, a.CallCount(engine.OpGetClient), "bound request stays on its engine")
	assert.Equal(t, 0, b.CallCount(engine.OpGetClient))

	// Rebinding an already bound context is a no-op.
	assert.Equal(t, ctx, sel.Bind(ctx))
}

// After SetActive(B) returns, every newly bound invocation is served by B,
// even while A is still busy with a request bound before the switch.
func TestSetActive_SwitchIsVisibleToNewRequests(t *testing.T) {
	a, b, sel := newPair(t)
	inv := engine.NewInvoker(sel, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	a.SetFault(engine.OpGetClient, func(engine.Call) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})

	inFlight := make(chan error, 1)
	go func() {
		ctx := sel.Bind(context.Background())
		_, err := inv.Invoke(ctx, getClient())
		inFlight <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("request on engine A did not start")
	}

	require.NoError(t, sel.SetActive(engine.MySQL))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := sel.Bind(context.Background())
			_, err := inv.Invoke(ctx, getClient())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, n, b.CallCount(engine.OpGetClient))
	assert.Equal(t, 1, a.CallCount(engine.OpGetClient))

	close(release)
	require.NoError(t, <-inFlight)
	assert.Equal(t, 1, a.CallCount(engine.OpGetClient))
}
