package postgres

import (
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
)

// Physical column names of the tenant schema. Every select aliases them to
// the neutral row contract of the engine package.
const (
	articleTable   = "article"
	clientTable    = "client"
	supplierTable  = "fournisseur"
	sequencesTable = "doc_sequences"

	articleCode = "narticle"
	dateColumn  = "date_fact"
	invoicedCol = "facturer"
)

var (
	articleSelect = []string{
		"narticle AS code",
		"famille AS family",
		"designation AS description",
		"nfournisseur AS supplier",
		"prix_unitaire AS unit_price",
		"marge AS margin",
		"tva AS vat_rate",
		"prix_vente AS sale_price",
		"seuil AS threshold",
		"stock_f AS stock_confirmed",
		"stock_bl AS stock_intransit",
	}
	clientSelect = []string{
		"nclient AS code",
		"raison_sociale AS name",
		"adresse AS address",
		"contact_person AS contact",
		"tel AS phone",
		"email",
		"nrc",
		"i_fiscal AS nif",
		"c_affaire_fact AS balance",
	}
	supplierSelect = []string{
		"nfournisseur AS code",
		"nom_fournisseur AS name",
		"adresse_fourni AS address",
		"resp_fournisseur AS contact",
		"tel AS phone",
		"email",
		"NULL AS nrc",
		"NULL AS nif",
		"caf AS balance",
	}
)

// statements builds the parameterized SQL for each operation.
// Schema and table names are quoted with pgx.Identifier; values are always bound.
type statements struct {
	kinds *dockind.Table
}

type statement struct {
	sql  string
	args []any
	// guard is set when zero affected rows must be explained by a follow-up lookup.
	guard bool
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func table(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func (s *statements) build(call engine.Call, inTx bool) (statement, error) {
	switch call.Op {
	case engine.OpGetClient:
		return s.party(call, clientTable, "nclient", clientSelect)
	case engine.OpGetSupplier:
		return s.party(call, supplierTable, "nfournisseur", supplierSelect)
	case engine.OpGetArticle:
		return finish(builder().
			Select(articleSelect...).
			From(table(call.Tenant, articleTable)).
			Where(squirrel.Eq{articleCode: call.Args[engine.ArgCode]}).
			Limit(1))
	case engine.OpGetArticleStock:
		return s.articleStock(call, inTx)
	case engine.OpAllocateNumber:
		return s.allocate(call)
	case engine.OpPeekNumber:
		d := call.Kind
		return finish(builder().
			Select(fmt.Sprintf("COALESCE(MAX(%s), 0) + 1 AS number", d.NumberColumn)).
			From(table(call.Tenant, d.HeaderTable)))
	case engine.OpInsertHeader:
		return s.insertHeader(call)
	case engine.OpInsertLine:
		return s.insertLine(call)
	case engine.OpAdjustStock:
		return s.adjust(call)
	case engine.OpMarkInvoiced:
		return s.markInvoiced(call)
	case engine.OpGetHeader:
		return s.header(call)
	case engine.OpGetLines:
		return s.lines(call)
	}
	return statement{}, engine.Errorf(engine.KindValidation, "operation %q not supported", call.Op)
}

func finish(b squirrel.Sqlizer) (statement, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return statement{}, engine.Errorf(engine.KindUnknown, "build statement: %v", err)
	}
	return statement{sql: sql, args: args}, nil
}

func (s *statements) party(call engine.Call, tbl, codeCol string, cols []string) (statement, error) {
	return finish(builder().
		Select(cols...).
		From(table(call.Tenant, tbl)).
		Where(squirrel.Eq{codeCol: call.Args[engine.ArgCode]}).
		Limit(1))
}

func counterColumn(call engine.Call) (string, error) {
	var (
		c   dockind.Counter
		err error
	)
	switch v := call.Args[engine.ArgCounter].(type) {
	case dockind.Counter:
		c = v
	case string:
		c, err = dockind.ParseCounter(v)
	default:
		err = fmt.Errorf("invalid counter %v", v)
	}
	if err != nil {
		return "", engine.Wrap(engine.KindValidation, err)
	}
	if !c.Valid() {
		return "", engine.Errorf(engine.KindValidation, "unknown stock counter %q", c)
	}
	return c.Column(), nil
}

func (s *statements) articleStock(call engine.Call, inTx bool) (statement, error) {
	col, err := counterColumn(call)
	if err != nil {
		return statement{}, err
	}
	q := builder().
		Select("narticle AS code", col+" AS stock").
		From(table(call.Tenant, articleTable)).
		Where(squirrel.Eq{articleCode: call.Args[engine.ArgCode]})
	if inTx {
		// Held until commit so the check and the adjustment see the same value.
		q = q.Suffix("FOR UPDATE")
	}
	return finish(q)
}

// allocate bumps the per-kind counter row. The first allocation, and any
// allocation after rows were written by other means, resumes at max+1.
func (s *statements) allocate(call engine.Call) (statement, error) {
	d := call.Kind
	maxPlusOne := fmt.Sprintf("(SELECT COALESCE(MAX(%s), 0) + 1 FROM %s)", d.NumberColumn, table(call.Tenant, d.HeaderTable))
	return finish(builder().
		Insert(table(call.Tenant, sequencesTable)).
		Columns("kind", "current_val").
		Values(string(d.Kind), squirrel.Expr(maxPlusOne)).
		Suffix("ON CONFLICT (kind) DO UPDATE SET current_val = GREATEST(" + sequencesTable + ".current_val + 1, EXCLUDED.current_val)").
		Suffix("RETURNING current_val AS number"))
}

func (s *statements) insertHeader(call engine.Call) (statement, error) {
	d := call.Kind
	a := call.Args
	return finish(builder().
		Insert(table(call.Tenant, d.HeaderTable)).
		Columns(d.NumberColumn, d.PartyColumn, dateColumn, "montant_ht", "tva", "timbre", "autre_taxe").
		Values(a[engine.ArgNumber], a[engine.ArgParty], a[engine.ArgDate],
			a[engine.ArgAmountExclTax], a[engine.ArgVATAmount], a[engine.ArgStampTax], a[engine.ArgOtherTax]).
		Suffix("RETURNING " + d.NumberColumn + " AS number"))
}

func (s *statements) insertLine(call engine.Call) (statement, error) {
	d := call.Kind
	a := call.Args
	return finish(builder().
		Insert(table(call.Tenant, d.DetailTable)).
		Columns(d.NumberColumn, articleCode, "qte", "prix", "tva", "total_ligne").
		Values(a[engine.ArgNumber], a[engine.ArgArticle], a[engine.ArgQty],
			a[engine.ArgUnitPrice], a[engine.ArgVATRate], a[engine.ArgLineTotal]).
		Suffix("RETURNING " + d.NumberColumn + " AS number"))
}

// adjust applies a signed delta. A decrement that would take the counter
// below zero matches no row; the engine then tells missing from refused.
func (s *statements) adjust(call engine.Call) (statement, error) {
	col, err := counterColumn(call)
	if err != nil {
		return statement{}, err
	}
	delta, err := engine.ToDecimal(call.Args[engine.ArgDelta])
	if err != nil {
		return statement{}, engine.Wrap(engine.KindValidation, err)
	}

	q := builder().
		Update(table(call.Tenant, articleTable)).
		Set(col, squirrel.Expr(col+" + ?::numeric", delta)).
		Where(squirrel.Eq{articleCode: call.Args[engine.ArgCode]})
	if delta.IsNegative() {
		q = q.Where(squirrel.Expr(col+" + ?::numeric >= 0", delta))
	}
	q = q.Suffix("RETURNING narticle AS code, "+col+" - ?::numeric AS old_stock, "+col+" AS new_stock", delta)

	st, err := finish(q)
	st.guard = true
	return st, err
}

func (s *statements) exists(call engine.Call) (statement, error) {
	return finish(builder().
		Select("1").
		From(table(call.Tenant, articleTable)).
		Where(squirrel.Eq{articleCode: call.Args[engine.ArgCode]}))
}

// markInvoiced flags a delivery note and its lines in one statement.
func (s *statements) markInvoiced(call engine.Call) (statement, error) {
	d := s.kinds.MustLookup(dockind.DeliveryNote)
	number := call.Args[engine.ArgNumber]
	lines := fmt.Sprintf("WITH lines AS (UPDATE %s SET %s = true WHERE %s = ?)",
		table(call.Tenant, d.DetailTable), invoicedCol, d.NumberColumn)
	return finish(builder().
		Update(table(call.Tenant, d.HeaderTable)).
		Prefix(lines, number).
		Set(invoicedCol, true).
		Where(squirrel.Eq{d.NumberColumn: number}).
		Suffix("RETURNING " + d.NumberColumn + " AS number"))
}

func (s *statements) header(call engine.Call) (statement, error) {
	d := call.Kind
	invoiced := "false AS invoiced"
	if d.Kind == dockind.DeliveryNote {
		invoiced = invoicedCol + " AS invoiced"
	}
	return finish(builder().
		Select(
			d.NumberColumn+" AS number",
			d.PartyColumn+" AS party",
			dateColumn+" AS date",
			"montant_ht AS amount_excl_tax",
			"tva AS vat_amount",
			"timbre AS stamp_tax",
			"autre_taxe AS other_tax",
			invoiced,
		).
		From(table(call.Tenant, d.HeaderTable)).
		Where(squirrel.Eq{d.NumberColumn: call.Args[engine.ArgNumber]}))
}

func (s *statements) lines(call engine.Call) (statement, error) {
	d := call.Kind
	return finish(builder().
		Select(
			"d."+d.NumberColumn+" AS number",
			"d.narticle AS article",
			"d.qte AS qty",
			"d.prix AS unit_price",
			"d.tva AS vat_rate",
			"d.total_ligne AS line_total",
			"a.designation AS description",
		).
		From(table(call.Tenant, d.DetailTable)+" d").
		LeftJoin(table(call.Tenant, articleTable)+" a ON a.narticle = d.narticle").
		Where(squirrel.Eq{"d." + d.NumberColumn: call.Args[engine.ArgNumber]}).
		OrderBy("d.id"))
}
