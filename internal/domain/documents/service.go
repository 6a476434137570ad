package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"docengine/internal/core/apperror"
	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
	corenumerator "docengine/internal/core/numerator"
	"docengine/internal/domain/audit"
	"docengine/internal/domain/catalogs/counterparty"
	"docengine/internal/domain/catalogs/nomenclature"
	"docengine/internal/domain/registers/stock"
	"docengine/pkg/logger"
)

// Unlocker releases a creation lock.
type Unlocker interface {
	Release(ctx context.Context) error
}

// Locker serializes creations per key when no transaction protects them.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlocker, error)
}

// Metrics observes document creations.
type Metrics interface {
	ObserveDocument(engine engine.Name, kind dockind.Kind, outcome string, degraded bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDocument(engine.Name, dockind.Kind, string, bool) {}

// ServiceConfig wires the document service.
type ServiceConfig struct {
	Invoker   *engine.Invoker
	Kinds     *dockind.Table
	Parties   *counterparty.Service
	Articles  *nomenclature.Service
	Numerator corenumerator.Allocator
	Ledger    *stock.Ledger

	// Optional
	Journal audit.Journal
	Locker  Locker
	Metrics Metrics
	Now     func() time.Time
}

// Service is the document transaction orchestrator.
//
// On a transactional engine the stock check, number allocation, header, lines,
// stock adjustments and invoiced marks run in one transaction. On other engines
// every step is a separate call and a failure after the header was written is
// reported as a partial write; nothing is cleaned up automatically.
type Service struct {
	invoker   *engine.Invoker
	kinds     *dockind.Table
	parties   *counterparty.Service
	articles  *nomenclature.Service
	numerator corenumerator.Allocator
	ledger    *stock.Ledger
	journal   audit.Journal
	locker    Locker
	metrics   Metrics
	now       func() time.Time
}

// NewService creates a new document service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		invoker:   cfg.Invoker,
		kinds:     cfg.Kinds,
		parties:   cfg.Parties,
		articles:  cfg.Articles,
		numerator: cfg.Numerator,
		ledger:    cfg.Ledger,
		journal:   cfg.Journal,
		locker:    cfg.Locker,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	if s.kinds == nil {
		s.kinds = dockind.DefaultTable()
	}
	if s.journal == nil {
		s.journal = audit.NopJournal{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// draft is a validated request ready to be written.
type draft struct {
	desc   dockind.Descriptor
	schema string
	party  *counterparty.Counterparty
	goods  map[string]*nomenclature.Article
	date   time.Time
	lines  []Line
	totals Totals
	notes  []int64

	lowStock []string
}

// Create validates and writes a document of kind for the tenant schema.
// Every call allocates a new number: retrying a request creates a second document.
func (s *Service) Create(ctx context.Context, schema string, kind dockind.Kind, req CreateRequest) (*Document, error) {
	desc, ok := s.kinds.Lookup(kind)
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown document kind %q", kind))
	}

	eng := s.invoker.Engine(ctx)
	tm, transactional := s.invoker.Transactional(ctx)

	doc, err := s.create(ctx, schema, desc, req, tm, transactional)

	outcome := "created"
	switch {
	case apperror.IsPartialWrite(err):
		outcome = "partial"
	case err != nil:
		outcome = "failed"
	}
	s.metrics.ObserveDocument(eng.Name(), kind, outcome, !transactional)

	if err != nil {
		return nil, engine.ToAppError(err)
	}
	return doc, nil
}

func (s *Service) create(
	ctx context.Context,
	schema string,
	desc dockind.Descriptor,
	req CreateRequest,
	tm engine.Transactional,
	transactional bool,
) (*Document, error) {
	if err := req.Validate(desc); err != nil {
		return nil, err
	}

	// Party and articles must exist
	party, err := s.parties.Require(ctx, schema, desc.Party, req.PartyCode)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		codes[i] = l.ArticleCode
	}
	articles, err := s.articles.RequireAll(ctx, schema, codes)
	if err != nil {
		return nil, err
	}

	// Line amounts
	lines := make([]Line, len(req.Lines))
	for i, in := range req.Lines {
		lines[i] = ComputeLine(in, articles[in.ArticleCode].Description)
	}

	dr := &draft{
		desc:   desc,
		schema: schema,
		party:  party,
		goods:  articles,
		date:   s.documentDate(req.Date),
		lines:  lines,
		totals: ComputeTotals(lines, req.StampTax, req.OtherTax),
		notes:  req.DeliveryNotes,
	}

	var number int64
	if transactional {
		err = tm.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			number, err = s.write(ctx, dr, false)
			return err
		})
	} else {
		number, err = s.writeDegraded(ctx, dr)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document created",
		"kind", desc.Kind,
		"number", number,
		"party", party.Code,
		"lines", len(lines),
		"total", dr.totals.TotalInclTax.StringFixed(2),
	)

	return &Document{
		Kind:      desc.Kind,
		Number:    number,
		PartyCode: party.Code,
		PartyName: party.Name,
		Date:      dr.date,
		Totals:    dr.totals,
		Lines:     lines,
		LowStock:  dr.lowStock,
		Degraded:  !transactional,
	}, nil
}

// reorderCheck returns the articles whose counter fell under the reorder
// threshold with this document, in adjustment order.
func (s *Service) reorderCheck(ctx context.Context, dr *draft, applied []stock.Balance) []string {
	var low []string
	for _, b := range applied {
		a, ok := dr.goods[strings.TrimSpace(b.Code)]
		if !ok {
			continue
		}
		a.SetStock(b.Counter, b.New)
		if !b.New.LessThan(b.Old) || !a.BelowThreshold(b.Counter) {
			continue
		}
		logger.Warn(ctx, "article below reorder threshold",
			"article", a.Code,
			"counter", b.Counter,
			"stock", b.New.String(),
			"threshold", a.Threshold.String(),
		)
		low = append(low, a.Code)
	}
	return low
}

func (s *Service) writeDegraded(ctx context.Context, dr *draft) (int64, error) {
	logger.Warn(ctx, "creating document without transaction",
		"degraded_mode", true,
		"kind", dr.desc.Kind,
	)

	if s.locker != nil {
		lock, err := s.locker.Lock(ctx, LockKey(dr.schema, dr.desc.Kind))
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn(ctx, "release creation lock failed", "error", err)
			}
		}()
	}
	return s.write(ctx, dr, true)
}

// write checks stock, allocates the number and persists the document.
// In degraded mode a failure after the header
// was persisted becomes a partial write.
func (s *Service) write(ctx context.Context, dr *draft, degraded bool) (int64, error) {
	desc := dr.desc

	// Stock check, before any write
	if desc.Stock.Check && desc.Stock.Direction == dockind.Decrement {
		if err := s.ledger.Check(ctx, dr.schema, desc.Stock.Counter, demand(dr.lines)); err != nil {
			return 0, err
		}
	}

	number, err := s.numerator.Allocate(ctx, dr.schema, desc)
	if err != nil {
		return 0, err
	}

	_, err = s.invoker.Invoke(ctx, engine.NewCall(engine.OpInsertHeader, dr.schema, engine.Args{
		engine.ArgNumber:        number,
		engine.ArgParty:         dr.party.Code,
		engine.ArgDate:          dr.date,
		engine.ArgAmountExclTax: dr.totals.AmountExclTax,
		engine.ArgVATAmount:     dr.totals.VATAmount,
		engine.ArgStampTax:      dr.totals.StampTax,
		engine.ArgOtherTax:      dr.totals.OtherTax,
	}).ForKind(desc))
	if err != nil {
		return 0, fmt.Errorf("insert %s %d: %w", desc.Kind, number, err)
	}

	// Lines in request order
	for i, l := range dr.lines {
		_, err := s.invoker.Invoke(ctx, engine.NewCall(engine.OpInsertLine, dr.schema, engine.Args{
			engine.ArgNumber:    number,
			engine.ArgArticle:   l.ArticleCode,
			engine.ArgQty:       l.Qty,
			engine.ArgUnitPrice: l.UnitPrice,
			engine.ArgVATRate:   l.VATRate,
			engine.ArgLineTotal: l.LineTotal,
		}).ForKind(desc))
		if err != nil {
			err = fmt.Errorf("insert %s %d line %d: %w", desc.Kind, number, i+1, err)
			if degraded {
				return 0, s.partialWrite(ctx, dr, number, i, err)
			}
			return 0, err
		}
	}

	// Stock and invoiced marks are best effort from here on
	if !desc.Stock.None() {
		res := s.ledger.ApplyAll(ctx, dr.schema,
			stock.DocumentRef{Kind: desc.Kind, Number: number},
			desc.Stock.Counter,
			movements(dr.lines, desc.Stock.Direction),
		)
		dr.lowStock = s.reorderCheck(ctx, dr, res.Applied)
	}

	s.markInvoiced(ctx, dr, number)
	return number, nil
}

func (s *Service) partialWrite(ctx context.Context, dr *draft, number int64, written int, cause error) error {
	logger.Error(ctx, "document partially written",
		"kind", dr.desc.Kind,
		"number", number,
		"lines_written", written,
		"lines_total", len(dr.lines),
		"error", cause,
	)
	err := s.journal.Record(ctx, audit.Entry{
		Type:   audit.EntryPartialWrite,
		Schema: dr.schema,
		Kind:   string(dr.desc.Kind),
		Number: number,
		Detail: map[string]any{
			"lines_written": written,
			"lines_total":   len(dr.lines),
			"error":         cause.Error(),
		},
	})
	if err != nil {
		logger.Error(ctx, "journal partial write failed", "error", err)
	}
	return apperror.NewPartialWrite(string(dr.desc.Kind), number, written, cause)
}

// markInvoiced flags the delivery notes referenced by an invoice. Failures
// are journaled and do not fail the invoice.
func (s *Service) markInvoiced(ctx context.Context, dr *draft, number int64) {
	for _, bl := range dr.notes {
		var rows engine.Rows
		err := s.isolated(ctx, func(ctx context.Context) error {
			var err error
			rows, err = s.invoker.Invoke(ctx, engine.NewCall(engine.OpMarkInvoiced, dr.schema, engine.Args{
				engine.ArgNumber: bl,
			}))
			return err
		})
		if err == nil && len(rows) == 0 {
			err = errors.New("delivery note not found")
		}
		if err == nil {
			continue
		}

		logger.Warn(ctx, "delivery note not marked invoiced",
			"invoice", number,
			"delivery_note", bl,
			"error", err,
		)
		jerr := s.journal.Record(ctx, audit.Entry{
			Type:   audit.EntryMarkSkipped,
			Schema: dr.schema,
			Kind:   string(dr.desc.Kind),
			Number: number,
			Detail: map[string]any{"delivery_note": bl, "error": err.Error()},
		})
		if jerr != nil {
			logger.Error(ctx, "journal mark skip failed", "error", jerr)
		}
	}
}

func (s *Service) isolated(ctx context.Context, fn func(ctx context.Context) error) error {
	if tm, ok := s.invoker.Transactional(ctx); ok {
		return tm.RunInSavepoint(ctx, fn)
	}
	return fn(ctx)
}

// Peek previews the number the next document of kind would get.
func (s *Service) Peek(ctx context.Context, schema string, kind dockind.Kind) (int64, error) {
	desc, ok := s.kinds.Lookup(kind)
	if !ok {
		return 0, apperror.NewValidation(fmt.Sprintf("unknown document kind %q", kind))
	}
	n, err := s.numerator.Peek(ctx, schema, desc)
	if err != nil {
		return 0, engine.ToAppError(err)
	}
	return n, nil
}

type headerRow struct {
	Number        int64           `mapstructure:"number"`
	Party         string          `mapstructure:"party"`
	Date          time.Time       `mapstructure:"date"`
	AmountExclTax decimal.Decimal `mapstructure:"amount_excl_tax"`
	VATAmount     decimal.Decimal `mapstructure:"vat_amount"`
	StampTax      decimal.Decimal `mapstructure:"stamp_tax"`
	OtherTax      decimal.Decimal `mapstructure:"other_tax"`
	Invoiced      bool            `mapstructure:"invoiced"`
}

type lineRow struct {
	Article     string          `mapstructure:"article"`
	Description string          `mapstructure:"description"`
	Qty         decimal.Decimal `mapstructure:"qty"`
	UnitPrice   decimal.Decimal `mapstructure:"unit_price"`
	VATRate     decimal.Decimal `mapstructure:"vat_rate"`
	LineTotal   decimal.Decimal `mapstructure:"line_total"`
}

// Get loads a stored document with its lines.
func (s *Service) Get(ctx context.Context, schema string, kind dockind.Kind, number int64) (*Document, error) {
	desc, ok := s.kinds.Lookup(kind)
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown document kind %q", kind))
	}

	rows, err := s.invoker.Invoke(ctx, engine.NewCall(engine.OpGetHeader, schema, engine.Args{
		engine.ArgNumber: number,
	}).ForKind(desc))
	if err != nil {
		return nil, engine.ToAppError(err)
	}
	if len(rows) == 0 {
		return nil, apperror.NewNotFound(string(kind), number)
	}
	var h headerRow
	if err := engine.Decode(rows[0], &h); err != nil {
		return nil, engine.ToAppError(err)
	}

	rows, err = s.invoker.Invoke(ctx, engine.NewCall(engine.OpGetLines, schema, engine.Args{
		engine.ArgNumber: number,
	}).ForKind(desc))
	if err != nil {
		return nil, engine.ToAppError(err)
	}
	var lr []lineRow
	if err := engine.Decode(rows, &lr); err != nil {
		return nil, engine.ToAppError(err)
	}

	doc := &Document{
		Kind:      kind,
		Number:    number,
		PartyCode: h.Party,
		Date:      h.Date,
		Invoiced:  h.Invoiced,
		Lines:     make([]Line, 0, len(lr)),
	}
	for _, r := range lr {
		doc.Lines = append(doc.Lines, Line{
			ArticleCode: r.Article,
			Description: r.Description,
			Qty:         r.Qty,
			UnitPrice:   r.UnitPrice,
			VATRate:     r.VATRate,
			LineTotal:   r.LineTotal,
		})
	}
	doc.Totals = Totals{
		AmountExclTax: h.AmountExclTax,
		VATAmount:     h.VATAmount,
		StampTax:      h.StampTax,
		OtherTax:      h.OtherTax,
		TotalInclTax:  h.AmountExclTax.Add(h.VATAmount).Add(h.StampTax).Add(h.OtherTax),
	}

	if cp, err := s.parties.Require(ctx, schema, desc.Party, h.Party); err == nil {
		doc.PartyName = cp.Name
	}
	return doc, nil
}

// LockKey is the creation lock key for a tenant and kind.
func LockKey(schema string, kind dockind.Kind) string {
	return fmt.Sprintf("docengine:create:%s:%s", schema, kind)
}

func (s *Service) documentDate(in *time.Time) time.Time {
	t := s.now()
	if in != nil && !in.IsZero() {
		t = *in
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func demand(lines []Line) []stock.Movement {
	out := make([]stock.Movement, len(lines))
	for i, l := range lines {
		out[i] = stock.Movement{Article: l.ArticleCode, Delta: l.Qty}
	}
	return out
}

func movements(lines []Line, dir dockind.Direction) []stock.Movement {
	sign := decimal.NewFromInt(int64(dir))
	out := make([]stock.Movement, len(lines))
	for i, l := range lines {
		out[i] = stock.Movement{Article: l.ArticleCode, Delta: l.Qty.Mul(sign)}
	}
	return out
}
