// Package rpc implements the engine that calls tenant-aware Postgres
// functions with named parameters, the way a Supabase project exposes them.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"docengine/internal/core/engine"
	"docengine/internal/infrastructure/storage/postgres"
	"docengine/pkg/logger"
)

// Config controls how routines are invoked.
type Config struct {
	// RoutineSchema holds the functions. Defaults to "public".
	RoutineSchema string
	// ExecRole is assumed for every call (SET LOCAL ROLE). Empty keeps the login role.
	ExecRole string
	// Claims are exposed to the routines as request.jwt.claims.
	Claims map[string]any
}

// Engine calls one routine per operation. Every call commits on its own,
// so a document creation through this engine is not atomic.
type Engine struct {
	db     postgres.DB
	cfg    Config
	claims string
}

var _ engine.Engine = (*Engine)(nil)

// New creates the RPC engine.
func New(db postgres.DB, cfg Config) (*Engine, error) {
	if cfg.RoutineSchema == "" {
		cfg.RoutineSchema = "public"
	}
	claims := ""
	if len(cfg.Claims) > 0 {
		b, err := json.Marshal(cfg.Claims)
		if err != nil {
			return nil, fmt.Errorf("encode claims: %w", err)
		}
		claims = string(b)
	}
	return &Engine{db: db, cfg: cfg, claims: claims}, nil
}

// Name implements engine.Engine.
func (e *Engine) Name() engine.Name { return engine.Supabase }

// Invoke implements engine.Engine.
func (e *Engine) Invoke(ctx context.Context, call engine.Call) (engine.Rows, error) {
	sql, args := e.statement(call)

	var raw []map[string]any
	err := e.inCallScope(ctx, func(q pgxscan.Querier) error {
		return pgxscan.Select(ctx, q, &raw, sql, args...)
	})
	if err != nil {
		return nil, postgres.Classify(err)
	}

	rows := make(engine.Rows, len(raw))
	for i, r := range raw {
		rows[i] = engine.Row(r)
	}
	return rows, nil
}

// statement renders SELECT * FROM schema.routine(p_tenant => $1, p_x => $2, ...).
func (e *Engine) statement(call engine.Call) (string, []any) {
	names := call.Named()
	values := call.Positional()

	params := make([]string, 0, len(names)+1)
	params = append(params, "p_tenant => $1")
	for i, n := range names {
		params = append(params, fmt.Sprintf("%s => $%d", n, i+2))
	}

	args := make([]any, 0, len(values)+1)
	args = append(args, call.Tenant)
	args = append(args, values...)

	fn := pgx.Identifier{e.cfg.RoutineSchema, call.Routine()}.Sanitize()
	return fmt.Sprintf("SELECT * FROM %s(%s)", fn, strings.Join(params, ", ")), args
}

// inCallScope runs fn in a short transaction carrying the execution role
// and claims. The transaction ends with the call.
func (e *Engine) inCallScope(ctx context.Context, fn func(q pgxscan.Querier) error) error {
	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin call scope: %w", err)
	}
	rollback := func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Warn(ctx, "rpc rollback failed", "error", rbErr)
		}
	}

	if e.cfg.ExecRole != "" {
		if _, err := tx.Exec(ctx, "SELECT set_config('role', $1, true)", e.cfg.ExecRole); err != nil {
			rollback()
			return fmt.Errorf("set role: %w", err)
		}
	}
	if e.claims != "" {
		if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, true)", e.claims); err != nil {
			rollback()
			return fmt.Errorf("set claims: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		rollback()
		return err
	}
	return tx.Commit(ctx)
}

// Ping implements engine.Engine.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.Ping(ctx); err != nil {
		return postgres.Classify(fmt.Errorf("ping: %w", err))
	}
	return nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.db.Close()
	return nil
}
