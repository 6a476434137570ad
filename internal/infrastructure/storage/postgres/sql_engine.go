package postgres

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
)

// DB is what the SQL engine needs from a pool.
type DB interface {
	Beginner
	Ping(ctx context.Context) error
	Close()
}

// SQLEngine issues parameterized SQL directly against the tenant schema.
// It is transactional: the orchestrator runs a whole creation in one transaction.
type SQLEngine struct {
	db    DB
	txm   *TxManager
	stmts *statements
}

var (
	_ engine.Engine        = (*SQLEngine)(nil)
	_ engine.Transactional = (*SQLEngine)(nil)
)

// NewSQLEngine creates the direct SQL engine. kinds supplies the delivery
// note descriptor used by mark_invoiced.
func NewSQLEngine(db DB, kinds *dockind.Table) *SQLEngine {
	return &SQLEngine{
		db:    db,
		txm:   NewTxManagerFrom(db),
		stmts: &statements{kinds: kinds},
	}
}

// Name implements engine.Engine.
func (e *SQLEngine) Name() engine.Name { return engine.Postgres }

// RunInTransaction implements tx.Manager.
func (e *SQLEngine) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return Classify(e.txm.RunInTransaction(ctx, fn))
}

// RunInSavepoint implements tx.SavepointManager.
func (e *SQLEngine) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.txm.RunInSavepoint(ctx, fn)
}

// Invoke implements engine.Engine.
func (e *SQLEngine) Invoke(ctx context.Context, call engine.Call) (engine.Rows, error) {
	st, err := e.stmts.build(call, e.txm.InTransaction(ctx))
	if err != nil {
		return nil, err
	}

	q := e.txm.GetQuerier(ctx)
	rows, err := query(ctx, q, st)
	if err != nil {
		return nil, err
	}
	if st.guard && len(rows) == 0 {
		return nil, e.explainAdjust(ctx, q, call)
	}
	return rows, nil
}

func (e *SQLEngine) explainAdjust(ctx context.Context, q Querier, call engine.Call) error {
	st, err := e.stmts.exists(call)
	if err != nil {
		return err
	}
	rows, err := query(ctx, q, st)
	if err != nil {
		return err
	}
	code := call.Args[engine.ArgCode]
	if len(rows) == 0 {
		return engine.Errorf(engine.KindNotFound, "article %v not found", code)
	}
	return engine.Errorf(engine.KindValidation, "stock of %v would become negative", code)
}

func query(ctx context.Context, q Querier, st statement) (engine.Rows, error) {
	var raw []map[string]any
	if err := pgxscan.Select(ctx, q, &raw, st.sql, st.args...); err != nil {
		return nil, Classify(err)
	}
	rows := make(engine.Rows, len(raw))
	for i, r := range raw {
		rows[i] = engine.Row(r)
	}
	return rows, nil
}

// Ping implements engine.Engine.
func (e *SQLEngine) Ping(ctx context.Context) error {
	if err := e.db.Ping(ctx); err != nil {
		return Classify(fmt.Errorf("ping: %w", err))
	}
	return nil
}

// Close implements engine.Engine.
func (e *SQLEngine) Close() error {
	e.db.Close()
	return nil
}
