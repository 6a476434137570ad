package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
	"docengine/internal/core/engine/enginetest"
	"docengine/internal/core/tenant"
	"docengine/internal/domain/audit"
	"docengine/internal/domain/catalogs/counterparty"
	"docengine/internal/domain/catalogs/nomenclature"
	"docengine/internal/domain/documents"
	"docengine/internal/domain/registers/stock"
	"docengine/internal/infrastructure/metrics"
	"docengine/internal/infrastructure/numerator"
	"docengine/pkg/logger"
)

const schema = "2025_bu01"

type apiFixture struct {
	router  *gin.Engine
	pg      *enginetest.TxMemory
	rpc     *enginetest.Memory
	sel     *engine.Selector
	metrics *metrics.Metrics
}

func seed(m *enginetest.Memory) {
	m.AddTenant(schema)
	m.AddClient(schema, "C1", "Client One")
	m.AddArticle(schema, enginetest.Article{
		Code: "A1", Description: "Widget",
		UnitPrice: decimal.NewFromInt(100), VATRate: decimal.NewFromInt(19),
		StockConfirmed: decimal.NewFromInt(10), StockInTransit: decimal.NewFromInt(10),
	})
}

func newAPI(t *testing.T, adminToken string) *apiFixture {
	t.Helper()

	pg := enginetest.NewTx(engine.Postgres)
	rpc := enginetest.New(engine.Supabase)
	seed(pg.Memory)
	seed(rpc)

	sel, err := engine.NewSelector(engine.Postgres, pg, rpc)
	require.NoError(t, err)
	m := metrics.New()
	sel.OnSwitch(m.ObserveEngineSwitch)
	inv := engine.NewInvoker(sel, m)

	reg, err := tenant.NewStaticRegistry(schema)
	require.NoError(t, err)
	resolver := tenant.NewResolver(tenant.DefaultResolverConfig(), reg, logger.Nop())
	t.Cleanup(resolver.Close)

	journal := &audit.MemoryJournal{}
	svc := documents.NewService(documents.ServiceConfig{
		Invoker:   inv,
		Parties:   counterparty.NewService(counterparty.NewEngineRepository(inv)),
		Articles:  nomenclature.NewService(nomenclature.NewEngineRepository(inv)),
		Numerator: numerator.New(inv),
		Ledger:    stock.NewLedger(inv, journal, m),
		Journal:   journal,
		Metrics:   m,
		Now:       enginetest.Clock(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)),
	})

	router := NewRouter(RouterConfig{
		Selector:   sel,
		Resolver:   resolver,
		Documents:  svc,
		Logger:     logger.Nop(),
		Metrics:    m,
		AdminToken: adminToken,
		Location:   time.UTC,
		Version:    "test",
	})
	return &apiFixture{router: router, pg: pg, rpc: rpc, sel: sel, metrics: m}
}

func (f *apiFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

var tenantHeaders = map[string]string{"X-Tenant-Schema": schema}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

const deliveryNote = `{"party_code":"C1","lines":[{"article_code":"A1","qty":4,"unit_price":"100","vat_rate":19}]}`

func TestCreateDocument(t *testing.T) {
	f := newAPI(t, "")

	w := f.do(http.MethodPost, "/api/v1/documents/delivery_note", deliveryNote, tenantHeaders)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decode(t, w)
	assert.True(t, env.Success)
	body := string(env.Data)
	assert.Contains(t, body, `"number":1`)
	assert.Contains(t, body, `"amount_excl_tax":400.00`)
	assert.Contains(t, body, `"vat_amount":76.00`)
	assert.Contains(t, body, `"total_incl_tax":476.00`)
	assert.Contains(t, body, `"date":"2025-03-14"`)
	assert.Contains(t, body, `"description":"Widget"`)
	assert.NotContains(t, body, `"degraded"`)

	assert.True(t, f.pg.Stock(schema, "A1", dockind.CounterInTransit).Equal(decimal.NewFromInt(6)))
}

func TestCreateDocument_InsufficientStock(t *testing.T) {
	f := newAPI(t, "")

	body := strings.Replace(deliveryNote, `"qty":4`, `"qty":20`, 1)
	w := f.do(http.MethodPost, "/api/v1/documents/bl", body, tenantHeaders)
	require.Equal(t, http.StatusBadRequest, w.Code)

	env := decode(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)
	assert.Equal(t, "A1", env.Error.Details["article_code"])
	assert.True(t, f.pg.Stock(schema, "A1", dockind.CounterInTransit).Equal(decimal.NewFromInt(10)))
}

func TestCreateDocument_BadRequests(t *testing.T) {
	f := newAPI(t, "")

	tests := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"no tenant", "/api/v1/documents/invoice", deliveryNote, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown tenant", "/api/v1/documents/invoice", deliveryNote, map[string]string{"X-Tenant-Schema": "2024_bu09"}, http.StatusNotFound, "TENANT_NOT_FOUND"},
		{"malformed tenant", "/api/v1/documents/invoice", deliveryNote, map[string]string{"X-Tenant-Schema": "x; drop"}, http.StatusNotFound, "TENANT_NOT_FOUND"},
		{"unknown kind", "/api/v1/documents/receipt", deliveryNote, tenantHeaders, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad json", "/api/v1/documents/invoice", `{"party_code":`, tenantHeaders, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad date", "/api/v1/documents/invoice", `{"party_code":"C1","date":"14/03/2025","lines":[{"article_code":"A1","qty":1}]}`, tenantHeaders, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown party", "/api/v1/documents/invoice", strings.Replace(deliveryNote, `"C1"`, `"C9"`, 1), tenantHeaders, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, tt.path, tt.body, tt.headers)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			env := decode(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
	assert.Empty(t, f.pg.Numbers(schema, dockind.Invoice))
}

func TestTenantFromBusinessUnitAndYear(t *testing.T) {
	f := newAPI(t, "")

	w := f.do(http.MethodPost, "/api/v1/documents/delivery_note", deliveryNote, map[string]string{
		"X-Business-Unit": "BU01",
		"X-Year":          "2025",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []int64{1}, f.pg.Numbers(schema, dockind.DeliveryNote))
}

func TestNextNumberAndGet(t *testing.T) {
	f := newAPI(t, "")

	w := f.do(http.MethodGet, "/api/v1/documents/delivery_note/next-number", "", tenantHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"number":1`)

	w = f.do(http.MethodPost, "/api/v1/documents/delivery_note", deliveryNote, tenantHeaders)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/api/v1/documents/delivery_note/next-number", "", tenantHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"number":2`)

	w = f.do(http.MethodGet, "/api/v1/documents/delivery_note/1", "", tenantHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := string(decode(t, w).Data)
	assert.Contains(t, data, `"party":"C1"`)
	assert.Contains(t, data, `"article_code":"A1"`)
	assert.Contains(t, data, `"amount_excl_tax":400.00`)

	w = f.do(http.MethodGet, "/api/v1/documents/delivery_note/99", "", tenantHeaders)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/delivery_note/abc", "", tenantHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEngineSwitch(t *testing.T) {
	f := newAPI(t, "secret")

	w := f.do(http.MethodPut, "/api/v1/admin/engine", `{"engine":"supabase"}`, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, engine.Postgres, f.sel.Active().Name())

	admin := map[string]string{"X-Admin-Token": "secret"}
	w = f.do(http.MethodPut, "/api/v1/admin/engine", `{"engine":"oracle"}`, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/v1/admin/engine", `{"engine":"supabase"}`, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(decode(t, w).Data), `"active":"supabase"`)

	// Requests bound after the switch are served by the new engine.
	w = f.do(http.MethodPost, "/api/v1/documents/delivery_note", deliveryNote, tenantHeaders)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, string(decode(t, w).Data), `"degraded":true`)
	assert.Equal(t, []int64{1}, f.rpc.Numbers(schema, dockind.DeliveryNote))
	assert.Empty(t, f.pg.Numbers(schema, dockind.DeliveryNote))

	w = f.do(http.MethodGet, "/api/v1/admin/engine", "", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"available":["postgresql","supabase"]`)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPI(t, "")

	w := f.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"engine":"postgresql"`)

	w = f.do(http.MethodGet, "/health/info", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"test"`)

	w = f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `docengine_http_requests_total{method="GET",route="/health/info",status="200"} 1`)
}

func TestTraceHeaders(t *testing.T) {
	f := newAPI(t, "")

	w := f.do(http.MethodGet, "/health/live", "", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}
