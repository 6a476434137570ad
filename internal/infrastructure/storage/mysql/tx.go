package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docengine/internal/core/tx"
	"docengine/pkg/logger"
)

var tracer = otel.Tracer("docengine/tx")

var (
	_ tx.Manager          = (*Engine)(nil)
	_ tx.SavepointManager = (*Engine)(nil)
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txKey struct{ e *Engine }

type txState struct {
	tx         *sql.Tx
	savepoints atomic.Int32
}

func (e *Engine) current(ctx context.Context) *txState {
	s, _ := ctx.Value(txKey{e}).(*txState)
	return s
}

func (e *Engine) querier(ctx context.Context) querier {
	if s := e.current(ctx); s != nil {
		return s.tx
	}
	return e.db
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (e *Engine) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.current(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(attribute.String("db.system", "mysql")))
	defer span.End()

	sqlTx, err := e.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}

	if err := fn(context.WithValue(ctx, txKey{e}, &txState{tx: sqlTx})); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		span.SetAttributes(attribute.Bool("tx.rolled_back", true))
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// RunInSavepoint implements tx.SavepointManager.
func (e *Engine) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	s := e.current(ctx)
	if s == nil {
		return fn(ctx)
	}

	name := fmt.Sprintf("sp_%d", s.savepoints.Add(1))
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return classify(fmt.Errorf("create savepoint: %w", err))
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := s.tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
		}
		return err
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return classify(fmt.Errorf("release savepoint: %w", err))
	}
	return nil
}
