// Package stock applies signed quantity deltas to the article stock counters.
package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"docengine/internal/core/apperror"
	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
	"docengine/internal/domain/audit"
	"docengine/pkg/logger"
)

// Balance is a counter value before and after an adjustment.
type Balance struct {
	Code    string
	Counter dockind.Counter
	Old     decimal.Decimal
	New     decimal.Decimal
}

// Movement is a signed delta for one article.
type Movement struct {
	Article string
	Delta   decimal.Decimal
}

// Skip records a movement that could not be applied.
type Skip struct {
	Movement
	Err error
}

// Result reports what ApplyAll did.
type Result struct {
	Applied []Balance
	Skipped []Skip
}

// DocumentRef identifies the document a batch of movements belongs to.
type DocumentRef struct {
	Kind   dockind.Kind
	Number int64
}

// Recorder observes adjustment outcomes.
type Recorder interface {
	ObserveStockAdjustment(counter dockind.Counter, applied bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStockAdjustment(dockind.Counter, bool) {}

// Ledger reads and adjusts stock counters through the bound engine.
type Ledger struct {
	invoker  *engine.Invoker
	journal  audit.Journal
	recorder Recorder
}

// NewLedger creates a ledger. journal and recorder may be nil.
func NewLedger(invoker *engine.Invoker, journal audit.Journal, recorder Recorder) *Ledger {
	if journal == nil {
		journal = audit.NopJournal{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Ledger{invoker: invoker, journal: journal, recorder: recorder}
}

// Available reads counter for an article. Inside a transaction the SQL engine
// locks the article row until commit.
func (l *Ledger) Available(ctx context.Context, schema, code string, counter dockind.Counter) (decimal.Decimal, error) {
	rows, err := l.invoker.Invoke(ctx, engine.NewCall(engine.OpGetArticleStock, schema, engine.Args{
		engine.ArgCode:    strings.TrimSpace(code),
		engine.ArgCounter: counter,
	}))
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, apperror.NewValidation(fmt.Sprintf("article %s does not exist", code)).
			WithDetail("value", code)
	}
	v, err := engine.ToDecimal(rows[0]["stock"])
	if err != nil {
		return decimal.Zero, engine.Wrap(engine.KindUnknown, fmt.Errorf("stock column: %w", err))
	}
	return v, nil
}

// Check verifies that every article has enough stock in counter.
// Quantities of the same article are summed first. Nothing is written.
func (l *Ledger) Check(ctx context.Context, schema string, counter dockind.Counter, demand []Movement) error {
	order, totals := aggregate(demand)
	for _, code := range order {
		available, err := l.Available(ctx, schema, code, counter)
		if err != nil {
			return err
		}
		if totals[code].GreaterThan(available) {
			return apperror.NewInsufficientStock(code, totals[code].String(), available.String()).
				WithDetail("counter", string(counter))
		}
	}
	return nil
}

// Adjust applies delta to counter. Engines refuse to take a counter below zero.
func (l *Ledger) Adjust(ctx context.Context, schema, code string, counter dockind.Counter, delta decimal.Decimal) (Balance, error) {
	row, err := l.invoker.InvokeOne(ctx, engine.NewCall(engine.OpAdjustStock, schema, engine.Args{
		engine.ArgCode:    strings.TrimSpace(code),
		engine.ArgCounter: counter,
		engine.ArgDelta:   delta,
	}))
	if err != nil {
		return Balance{}, err
	}
	b := Balance{Code: code, Counter: counter}
	if b.Old, err = engine.ToDecimal(row["old_stock"]); err != nil {
		return Balance{}, engine.Wrap(engine.KindUnknown, err)
	}
	if b.New, err = engine.ToDecimal(row["new_stock"]); err != nil {
		return Balance{}, engine.Wrap(engine.KindUnknown, err)
	}
	return b, nil
}

// ApplyAll adjusts counter for each movement, sequentially and in order.
// A failed adjustment is logged, counted, journaled and skipped; it never
// fails the batch. Inside a transaction each adjustment runs in a savepoint
// so a failure leaves the enclosing transaction usable.
func (l *Ledger) ApplyAll(ctx context.Context, schema string, ref DocumentRef, counter dockind.Counter, movements []Movement) Result {
	var res Result
	for _, m := range movements {
		var b Balance
		err := l.isolated(ctx, func(ctx context.Context) error {
			var err error
			b, err = l.Adjust(ctx, schema, m.Article, counter, m.Delta)
			return err
		})
		if err != nil {
			l.skip(ctx, schema, ref, counter, m, err)
			res.Skipped = append(res.Skipped, Skip{Movement: m, Err: err})
			continue
		}
		l.recorder.ObserveStockAdjustment(counter, true)
		res.Applied = append(res.Applied, b)
	}
	return res
}

func (l *Ledger) isolated(ctx context.Context, fn func(ctx context.Context) error) error {
	if tm, ok := l.invoker.Transactional(ctx); ok {
		return tm.RunInSavepoint(ctx, fn)
	}
	return fn(ctx)
}

func (l *Ledger) skip(ctx context.Context, schema string, ref DocumentRef, counter dockind.Counter, m Movement, cause error) {
	l.recorder.ObserveStockAdjustment(counter, false)
	logger.Warn(ctx, "stock adjustment skipped",
		"kind", ref.Kind,
		"number", ref.Number,
		"article", m.Article,
		"counter", counter,
		"delta", m.Delta.String(),
		"error", cause,
	)

	err := l.journal.Record(ctx, audit.Entry{
		Type:   audit.EntryStockSkipped,
		Schema: schema,
		Kind:   string(ref.Kind),
		Number: ref.Number,
		Detail: map[string]any{
			"article": m.Article,
			"counter": string(counter),
			"delta":   m.Delta.String(),
			"error":   cause.Error(),
		},
	})
	if err != nil {
		logger.Error(ctx, "journal stock skip failed", "error", err)
	}
}

func aggregate(ms []Movement) ([]string, map[string]decimal.Decimal) {
	order := make([]string, 0, len(ms))
	totals := make(map[string]decimal.Decimal, len(ms))
	for _, m := range ms {
		code := strings.TrimSpace(m.Article)
		if _, ok := totals[code]; !ok {
			order = append(order, code)
		}
		totals[code] = totals[code].Add(m.Delta)
	}
	return order, totals
}
