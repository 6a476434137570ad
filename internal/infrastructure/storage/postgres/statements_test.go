package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
)

const schema = "2025_bu01"

func newStatements() *statements {
	return &statements{kinds: dockind.DefaultTable()}
}

func kinded(op engine.Operation, k dockind.Kind, args engine.Args) engine.Call {
	return engine.NewCall(op, schema, args).ForKind(dockind.DefaultTable().MustLookup(k))
}

func TestBuild_GetArticle(t *testing.T) {
	st, err := newStatements().build(engine.NewCall(engine.OpGetArticle, schema, engine.Args{engine.ArgCode: "A1"}), false)
	require.NoError(t, err)

	assert.Contains(t, st.sql, `FROM "2025_bu01"."article"`)
	assert.Contains(t, st.sql, "designation AS description")
	assert.Contains(t, st.sql, "stock_bl AS stock_intransit")
	assert.Contains(t, st.sql, "WHERE narticle = $1")
	assert.Equal(t, []any{"A1"}, st.args)
}

func TestBuild_Parties(t *testing.T) {
	s := newStatements()

	st, err := s.build(engine.NewCall(engine.OpGetClient, schema, engine.Args{engine.ArgCode: "C1"}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, `FROM "2025_bu01"."client"`)
	assert.Contains(t, st.sql, "raison_sociale AS name")
	assert.Contains(t, st.sql, "WHERE nclient = $1")

	st, err = s.build(engine.NewCall(engine.OpGetSupplier, schema, engine.Args{engine.ArgCode: "F1"}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, `FROM "2025_bu01"."fournisseur"`)
	assert.Contains(t, st.sql, "WHERE nfournisseur = $1")
}

func TestBuild_ArticleStockLocksInsideTransaction(t *testing.T) {
	s := newStatements()
	call := engine.NewCall(engine.OpGetArticleStock, schema, engine.Args{
		engine.ArgCode:    "A1",
		engine.ArgCounter: dockind.CounterConfirmed,
	})

	st, err := s.build(call, false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, "stock_f AS stock")
	assert.NotContains(t, st.sql, "FOR UPDATE")

	st, err = s.build(call, true)
	require.NoError(t, err)
	assert.Contains(t, st.sql, "FOR UPDATE")
}

func TestBuild_UnknownCounter(t *testing.T) {
	_, err := newStatements().build(engine.NewCall(engine.OpGetArticleStock, schema, engine.Args{
		engine.ArgCode:    "A1",
		engine.ArgCounter: "stock_x",
	}), false)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
}

func TestBuild_Allocate(t *testing.T) {
	st, err := newStatements().build(kinded(engine.OpAllocateNumber, dockind.DeliveryNote, engine.Args{}), false)
	require.NoError(t, err)

	assert.Contains(t, st.sql, `INSERT INTO "2025_bu01"."doc_sequences"`)
	assert.Contains(t, st.sql, `SELECT COALESCE(MAX(nfact), 0) + 1 FROM "2025_bu01"."bl"`)
	assert.Contains(t, st.sql, "ON CONFLICT (kind) DO UPDATE SET current_val = GREATEST(doc_sequences.current_val + 1, EXCLUDED.current_val)")
	assert.Contains(t, st.sql, "RETURNING current_val AS number")
	assert.Equal(t, []any{"delivery_note"}, st.args)
}

func TestBuild_Peek(t *testing.T) {
	st, err := newStatements().build(kinded(engine.OpPeekNumber, dockind.PurchaseInvoice, engine.Args{}), false)
	require.NoError(t, err)

	assert.Contains(t, st.sql, "COALESCE(MAX(nfact_achat), 0) + 1 AS number")
	assert.Contains(t, st.sql, `FROM "2025_bu01"."facture_achat"`)
	assert.Empty(t, st.args)
}

func TestBuild_InsertHeaderAndLine(t *testing.T) {
	s := newStatements()
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	st, err := s.build(kinded(engine.OpInsertHeader, dockind.Invoice, engine.Args{
		engine.ArgNumber:        int64(7),
		engine.ArgParty:         "C1",
		engine.ArgDate:          date,
		engine.ArgAmountExclTax: decimal.RequireFromString("400"),
		engine.ArgVATAmount:     decimal.RequireFromString("76"),
		engine.ArgStampTax:      decimal.Zero,
		engine.ArgOtherTax:      decimal.Zero,
	}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, `INSERT INTO "2025_bu01"."facture"`)
	assert.Contains(t, st.sql, "RETURNING nfact AS number")
	require.Len(t, st.args, 7)
	assert.Equal(t, int64(7), st.args[0])
	assert.Equal(t, "C1", st.args[1])
	assert.Equal(t, date, st.args[2])

	st, err = s.build(kinded(engine.OpInsertLine, dockind.PurchaseOrder, engine.Args{
		engine.ArgNumber:    int64(3),
		engine.ArgArticle:   "A1",
		engine.ArgQty:       decimal.RequireFromString("2"),
		engine.ArgUnitPrice: decimal.RequireFromString("10"),
		engine.ArgVATRate:   decimal.RequireFromString("19"),
		engine.ArgLineTotal: decimal.RequireFromString("20"),
	}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, `INSERT INTO "2025_bu01"."detail_bc"`)
	assert.Contains(t, st.sql, "RETURNING nbc AS number")
	assert.Len(t, st.args, 6)
}

func TestBuild_AdjustGuardsDecrements(t *testing.T) {
	s := newStatements()
	minus := decimal.RequireFromString("-4")

	st, err := s.build(engine.NewCall(engine.OpAdjustStock, schema, engine.Args{
		engine.ArgCode:    "A1",
		engine.ArgCounter: dockind.CounterInTransit,
		engine.ArgDelta:   minus,
	}), true)
	require.NoError(t, err)
	assert.True(t, st.guard)
	assert.Contains(t, st.sql, `UPDATE "2025_bu01"."article" SET stock_bl = stock_bl + $1::numeric`)
	assert.Contains(t, st.sql, "stock_bl + $3::numeric >= 0")
	assert.Contains(t, st.sql, "stock_bl - $4::numeric AS old_stock, stock_bl AS new_stock")
	assert.Equal(t, []any{minus, "A1", minus, minus}, st.args)

	plus := decimal.RequireFromString("5")
	st, err = s.build(engine.NewCall(engine.OpAdjustStock, schema, engine.Args{
		engine.ArgCode:    "A1",
		engine.ArgCounter: dockind.CounterConfirmed,
		engine.ArgDelta:   plus,
	}), true)
	require.NoError(t, err)
	assert.NotContains(t, st.sql, ">= 0")
	assert.Len(t, st.args, 3)
}

func TestBuild_MarkInvoicedFlagsHeaderAndLines(t *testing.T) {
	st, err := newStatements().build(engine.NewCall(engine.OpMarkInvoiced, schema, engine.Args{engine.ArgNumber: int64(5)}), false)
	require.NoError(t, err)

	assert.Contains(t, st.sql, `WITH lines AS (UPDATE "2025_bu01"."detail_bl" SET facturer = true WHERE nfact = $1)`)
	assert.Contains(t, st.sql, `UPDATE "2025_bu01"."bl" SET facturer = $2 WHERE nfact = $3`)
	assert.Equal(t, []any{int64(5), true, int64(5)}, st.args)
}

func TestBuild_ReadBack(t *testing.T) {
	s := newStatements()

	st, err := s.build(kinded(engine.OpGetHeader, dockind.DeliveryNote, engine.Args{engine.ArgNumber: int64(1)}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, "facturer AS invoiced")
	assert.Contains(t, st.sql, "montant_ht AS amount_excl_tax")

	st, err = s.build(kinded(engine.OpGetHeader, dockind.Proforma, engine.Args{engine.ArgNumber: int64(1)}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, "false AS invoiced")

	st, err = s.build(kinded(engine.OpGetLines, dockind.DeliveryNote, engine.Args{engine.ArgNumber: int64(1)}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, `LEFT JOIN "2025_bu01"."article" a ON a.narticle = d.narticle`)
	assert.Contains(t, st.sql, "ORDER BY d.id")
}

func TestBuild_SchemaIsQuoted(t *testing.T) {
	st, err := newStatements().build(engine.NewCall(engine.OpGetArticle, `x"; drop`, engine.Args{engine.ArgCode: "A1"}), false)
	require.NoError(t, err)
	assert.Contains(t, st.sql, `"x""; drop"."article"`)
}
