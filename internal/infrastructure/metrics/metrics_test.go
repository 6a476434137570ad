package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
)

func TestObserveDocument(t *testing.T) {
	m := New()

	m.ObserveDocument(engine.Supabase, dockind.DeliveryNote, "created", true)
	m.ObserveDocument(engine.Supabase, dockind.DeliveryNote, "partial", true)
	m.ObserveDocument(engine.Postgres, dockind.Invoice, "created", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues("supabase", "delivery_note", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.degraded.WithLabelValues("supabase", "delivery_note")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.degraded.WithLabelValues("postgresql", "invoice")))
}

func TestObserveStockAdjustment(t *testing.T) {
	m := New()

	m.ObserveStockAdjustment(dockind.CounterInTransit, true)
	m.ObserveStockAdjustment(dockind.CounterInTransit, false)
	m.ObserveStockAdjustment(dockind.CounterInTransit, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockAdjustments.WithLabelValues("stock_intransit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stockSkipped.WithLabelValues("stock_intransit")))
}

func TestActiveEngineGauge(t *testing.T) {
	m := New()

	m.SetActiveEngine(engine.Supabase)
	m.ObserveEngineSwitch(engine.Supabase, engine.MySQL)

	assert.Equal(t, 1, testutil.CollectAndCount(m.activeEngine))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeEngine.WithLabelValues("mysql")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.engineSwitches.WithLabelValues("supabase", "mysql")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveInvoke(engine.MySQL, engine.OpAdjustStock, "ok", 3*time.Millisecond)
	m.ObserveHTTP(http.MethodPost, "/api/v1/documents/:kind", http.StatusCreated, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docengine_engine_invocations_total{engine="mysql",op="adjust_stock",outcome="ok"} 1`)
	assert.Contains(t, string(body), `docengine_http_requests_total{method="POST",route="/api/v1/documents/:kind",status="201"} 1`)
}
