// Package enginetest provides an in-memory engine.Engine for tests.
// It implements every operation of the signature table with the same row
// shapes as the database engines, supports optional transactions and lets
// tests inject faults per operation.
package enginetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
)

// Article seeds an article.
type Article struct {
	Code           string
	Description    string
	Family         string
	UnitPrice      decimal.Decimal
	VATRate        decimal.Decimal
	StockConfirmed decimal.Decimal
	StockInTransit decimal.Decimal
	Threshold      decimal.Decimal
}

// FaultFunc decides whether an invocation fails. Returning nil lets it run.
// It runs outside the engine lock, so it may block.
type FaultFunc func(call engine.Call) error

type document struct {
	header engine.Row
	lines  []engine.Row
}

type tenantData struct {
	clients   map[string]engine.Row
	suppliers map[string]engine.Row
	articles  map[string]engine.Row
	docs      map[dockind.Kind]map[int64]*document
	counters  map[dockind.Kind]int64
}

// Memory is an in-memory engine.
type Memory struct {
	name          engine.Name
	transactional bool

	mu      sync.Mutex
	tenants map[string]*tenantData
	faults  map[engine.Operation]FaultFunc
	calls   []engine.Call
}

// NewMemory creates an engine named name. When transactional is true the
// engine implements engine.Transactional with snapshot rollback.
func NewMemory(name engine.Name, transactional bool) engine.Engine {
	m := newMemory(name, transactional)
	if transactional {
		return &TxMemory{Memory: m}
	}
	return m
}

// New returns the concrete non-transactional memory engine.
func New(name engine.Name) *Memory {
	return newMemory(name, false)
}

// NewTx returns the concrete transactional memory engine.
func NewTx(name engine.Name) *TxMemory {
	return &TxMemory{Memory: newMemory(name, true)}
}

func newMemory(name engine.Name, transactional bool) *Memory {
	return &Memory{
		name:          name,
		transactional: transactional,
		tenants:       make(map[string]*tenantData),
		faults:        make(map[engine.Operation]FaultFunc),
	}
}

func (m *Memory) Name() engine.Name             { return m.name }
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
func (m *Memory) Close() error                   { return nil }

// --- seeding ---

// AddTenant creates an empty tenant schema.
func (m *Memory) AddTenant(schema string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(schema, true)
}

// AddClient seeds a client.
func (m *Memory) AddClient(schema, code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(schema, true).clients[code] = engine.Row{"code": code, "name": name, "balance": decimal.Zero}
}

// AddSupplier seeds a supplier.
func (m *Memory) AddSupplier(schema, code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(schema, true).suppliers[code] = engine.Row{"code": code, "name": name, "balance": decimal.Zero}
}

// AddArticle seeds an article.
func (m *Memory) AddArticle(schema string, a Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(schema, true).articles[a.Code] = engine.Row{
		"code":            a.Code,
		"description":     a.Description,
		"family":          a.Family,
		"unit_price":      a.UnitPrice,
		"vat_rate":        a.VATRate,
		"sale_price":      a.UnitPrice,
		"stock_confirmed": a.StockConfirmed,
		"stock_intransit": a.StockInTransit,
		"threshold":       a.Threshold,
	}
}

// SeedDocument stores a header as if written earlier, outside the engine counter.
func (m *Memory) SeedDocument(schema string, kind dockind.Kind, number int64, party string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(schema, true)
	if t.docs[kind] == nil {
		t.docs[kind] = make(map[int64]*document)
	}
	t.docs[kind][number] = &document{header: engine.Row{"number": number, "party": party, "invoiced": false}}
}

// --- inspection ---

// Stock returns an article counter.
func (m *Memory) Stock(schema, code string, counter dockind.Counter) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(schema, false)
	if t == nil || t.articles[code] == nil {
		return decimal.Zero
	}
	v, _ := engine.ToDecimal(t.articles[code][string(counter)])
	return v
}

// Numbers returns the header numbers stored for a kind, ascending.
func (m *Memory) Numbers(schema string, kind dockind.Kind) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(schema, false)
	if t == nil {
		return nil
	}
	out := make([]int64, 0, len(t.docs[kind]))
	for n := range t.docs[kind] {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lines returns the lines stored for a document.
func (m *Memory) Lines(schema string, kind dockind.Kind, number int64) []engine.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(schema, false)
	if t == nil || t.docs[kind][number] == nil {
		return nil
	}
	return append([]engine.Row(nil), t.docs[kind][number].lines...)
}

// Header returns a stored header or nil.
func (m *Memory) Header(schema string, kind dockind.Kind, number int64) engine.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(schema, false)
	if t == nil || t.docs[kind][number] == nil {
		return nil
	}
	return t.docs[kind][number].header
}

// Calls returns the invocation log.
func (m *Memory) Calls() []engine.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.Call(nil), m.calls...)
}

// CallCount counts logged invocations of op.
func (m *Memory) CallCount(op engine.Operation) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// WriteCount counts logged invocations of writing operations.
func (m *Memory) WriteCount() int {
	n := 0
	for _, c := range m.Calls() {
		if sig, _ := engine.SignatureOf(c.Op); sig.Writes {
			n++
		}
	}
	return n
}

// --- faults ---

// SetFault installs f for op, replacing any previous one.
func (m *Memory) SetFault(op engine.Operation, f FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = f
}

// ClearFaults removes every installed fault.
func (m *Memory) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[engine.Operation]FaultFunc)
}

// FailAlways returns a fault that always fails with kind.
func FailAlways(kind engine.ErrorKind, msg string) FaultFunc {
	return func(engine.Call) error { return engine.Errorf(kind, "%s", msg) }
}

// FailAfter lets the first n calls succeed and fails the following ones.
func FailAfter(n int, kind engine.ErrorKind, msg string) FaultFunc {
	var mu sync.Mutex
	seen := 0
	return func(engine.Call) error {
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen > n {
			return engine.Errorf(kind, "%s", msg)
		}
		return nil
	}
}

// FailForArg fails calls whose argument name equals value.
func FailForArg(name string, value any, kind engine.ErrorKind, msg string) FaultFunc {
	return func(call engine.Call) error {
		if call.Args[name] == value {
			return engine.Errorf(kind, "%s", msg)
		}
		return nil
	}
}

// --- engine.Engine ---

// Invoke implements engine.Engine.
func (m *Memory) Invoke(ctx context.Context, call engine.Call) (engine.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.KindUnavailable, err)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	fault := m.faults[call.Op]
	m.mu.Unlock()

	if fault != nil {
		if err := fault(call); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(call.Tenant, false)
	if t == nil {
		return nil, engine.Errorf(engine.KindNotFound, "schema %q does not exist", call.Tenant)
	}

	switch call.Op {
	case engine.OpGetClient:
		return single(t.clients[str(call.Args[engine.ArgCode])]), nil
	case engine.OpGetSupplier:
		return single(t.suppliers[str(call.Args[engine.ArgCode])]), nil
	case engine.OpGetArticle:
		return single(t.articles[str(call.Args[engine.ArgCode])]), nil
	case engine.OpGetArticleStock:
		return m.articleStock(t, call)
	case engine.OpAllocateNumber:
		kind := call.Kind.Kind
		next := maxNumber(t.docs[kind]) + 1
		if c := t.counters[kind] + 1; c > next {
			next = c
		}
		t.counters[kind] = next
		return engine.Rows{{"number": next}}, nil
	case engine.OpPeekNumber:
		return engine.Rows{{"number": maxNumber(t.docs[call.Kind.Kind]) + 1}}, nil
	case engine.OpInsertHeader:
		return m.insertHeader(t, call)
	case engine.OpInsertLine:
		return m.insertLine(t, call)
	case engine.OpAdjustStock:
		return m.adjustStock(t, call)
	case engine.OpMarkInvoiced:
		doc := t.docs[dockind.DeliveryNote][toInt64(call.Args[engine.ArgNumber])]
		if doc == nil {
			return engine.Rows{}, nil
		}
		doc.header["invoiced"] = true
		for _, l := range doc.lines {
			l["invoiced"] = true
		}
		return engine.Rows{{"number": doc.header["number"]}}, nil
	case engine.OpGetHeader:
		doc := t.docs[call.Kind.Kind][toInt64(call.Args[engine.ArgNumber])]
		if doc == nil {
			return engine.Rows{}, nil
		}
		return engine.Rows{copyRow(doc.header)}, nil
	case engine.OpGetLines:
		doc := t.docs[call.Kind.Kind][toInt64(call.Args[engine.ArgNumber])]
		if doc == nil {
			return engine.Rows{}, nil
		}
		out := make(engine.Rows, 0, len(doc.lines))
		for _, l := range doc.lines {
			row := copyRow(l)
			if a := t.articles[str(l["article"])]; a != nil {
				row["description"] = a["description"]
			}
			out = append(out, row)
		}
		return out, nil
	}
	return nil, engine.Errorf(engine.KindValidation, "operation %q not supported", call.Op)
}

func (m *Memory) articleStock(t *tenantData, call engine.Call) (engine.Rows, error) {
	a := t.articles[str(call.Args[engine.ArgCode])]
	if a == nil {
		return engine.Rows{}, nil
	}
	counter, err := counterArg(call)
	if err != nil {
		return nil, err
	}
	return engine.Rows{{"code": a["code"], "stock": a[string(counter)]}}, nil
}

func (m *Memory) insertHeader(t *tenantData, call engine.Call) (engine.Rows, error) {
	kind := call.Kind.Kind
	number := toInt64(call.Args[engine.ArgNumber])
	if t.docs[kind] == nil {
		t.docs[kind] = make(map[int64]*document)
	}
	if _, dup := t.docs[kind][number]; dup {
		return nil, engine.Errorf(engine.KindConflict, "duplicate key value violates unique constraint %s_%s_key",
			call.Kind.HeaderTable, call.Kind.NumberColumn)
	}
	header := engine.Row{"invoiced": false}
	for k, v := range call.Args {
		header[k] = v
	}
	t.docs[kind][number] = &document{header: header}
	return engine.Rows{{"number": number}}, nil
}

func (m *Memory) insertLine(t *tenantData, call engine.Call) (engine.Rows, error) {
	kind := call.Kind.Kind
	number := toInt64(call.Args[engine.ArgNumber])
	doc := t.docs[kind][number]
	if doc == nil {
		return nil, engine.Errorf(engine.KindValidation, "insert or update on table %s violates foreign key constraint",
			call.Kind.DetailTable)
	}
	if t.articles[str(call.Args[engine.ArgArticle])] == nil {
		return nil, engine.Errorf(engine.KindValidation, "article %v does not exist", call.Args[engine.ArgArticle])
	}
	line := engine.Row{"invoiced": false}
	for k, v := range call.Args {
		line[k] = v
	}
	doc.lines = append(doc.lines, line)
	return engine.Rows{{"number": number}}, nil
}

func (m *Memory) adjustStock(t *tenantData, call engine.Call) (engine.Rows, error) {
	code := str(call.Args[engine.ArgCode])
	a := t.articles[code]
	if a == nil {
		return nil, engine.Errorf(engine.KindNotFound, "article %s not found", code)
	}
	counter, err := counterArg(call)
	if err != nil {
		return nil, err
	}
	delta, err := engine.ToDecimal(call.Args[engine.ArgDelta])
	if err != nil {
		return nil, engine.Wrap(engine.KindValidation, err)
	}
	old, _ := engine.ToDecimal(a[string(counter)])
	next := old.Add(delta)
	if delta.IsNegative() && next.IsNegative() {
		return nil, engine.Errorf(engine.KindValidation, "stock of %s would become negative", code)
	}
	a[string(counter)] = next
	return engine.Rows{{"code": code, "old_stock": old, "new_stock": next}}, nil
}

// --- transactions ---

// TxMemory is a Memory that implements engine.Transactional.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

type txMarker struct{}

// RunInTransaction snapshots the state and restores it when fn fails.
// Transactions are serialized, which is enough for tests.
func (m *TxMemory) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// RunInSavepoint restores the state to the savepoint when fn fails.
func (m *TxMemory) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) == nil {
		return fn(ctx)
	}
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) snapshot() map[string]*tenantData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*tenantData, len(m.tenants))
	for name, t := range m.tenants {
		out[name] = t.clone()
	}
	return out
}

func (m *Memory) restore(snap map[string]*tenantData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = snap
}

// --- helpers ---

func (m *Memory) tenant(schema string, create bool) *tenantData {
	t := m.tenants[schema]
	if t == nil && create {
		t = &tenantData{
			clients:   make(map[string]engine.Row),
			suppliers: make(map[string]engine.Row),
			articles:  make(map[string]engine.Row),
			docs:      make(map[dockind.Kind]map[int64]*document),
			counters:  make(map[dockind.Kind]int64),
		}
		m.tenants[schema] = t
	}
	return t
}

func (t *tenantData) clone() *tenantData {
	c := &tenantData{
		clients:   copyRows(t.clients),
		suppliers: copyRows(t.suppliers),
		articles:  copyRows(t.articles),
		docs:      make(map[dockind.Kind]map[int64]*document, len(t.docs)),
		counters:  make(map[dockind.Kind]int64, len(t.counters)),
	}
	for k, v := range t.counters {
		c.counters[k] = v
	}
	for k, docs := range t.docs {
		c.docs[k] = make(map[int64]*document, len(docs))
		for n, d := range docs {
			lines := make([]engine.Row, 0, len(d.lines))
			for _, l := range d.lines {
				lines = append(lines, copyRow(l))
			}
			c.docs[k][n] = &document{header: copyRow(d.header), lines: lines}
		}
	}
	return c
}

func copyRows(in map[string]engine.Row) map[string]engine.Row {
	out := make(map[string]engine.Row, len(in))
	for k, v := range in {
		out[k] = copyRow(v)
	}
	return out
}

func copyRow(r engine.Row) engine.Row {
	out := make(engine.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func single(r engine.Row) engine.Rows {
	if r == nil {
		return engine.Rows{}
	}
	return engine.Rows{copyRow(r)}
}

func maxNumber(docs map[int64]*document) int64 {
	var max int64
	for n := range docs {
		if n > max {
			max = n
		}
	}
	return max
}

func counterArg(call engine.Call) (dockind.Counter, error) {
	switch v := call.Args[engine.ArgCounter].(type) {
	case dockind.Counter:
		return v, nil
	case string:
		c, err := dockind.ParseCounter(v)
		if err != nil {
			return "", engine.Wrap(engine.KindValidation, err)
		}
		return c, nil
	}
	return "", engine.Errorf(engine.KindValidation, "invalid counter %v", call.Args[engine.ArgCounter])
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	}
	return 0
}

var _ engine.Engine = (*Memory)(nil)
var _ engine.Transactional = (*TxMemory)(nil)

// Clock returns a fixed time function for deterministic dates.
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
