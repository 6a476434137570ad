// Package mysql implements the engine that calls per-operation stored
// procedures with positional parameters, the tenant schema first.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"docengine/internal/core/engine"
)

// Config holds connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open parses the DSN, forces the options the engine relies on and checks connectivity.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := mysqldriver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	dsn.ParseTime = true
	dsn.MultiStatements = false
	if dsn.Params == nil {
		dsn.Params = map[string]string{}
	}
	if _, ok := dsn.Params["charset"]; !ok {
		dsn.Params["charset"] = "utf8mb4"
	}

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Engine runs CALL routine(tenant, args...) for every operation.
type Engine struct {
	db *sql.DB
}

var (
	_ engine.Engine        = (*Engine)(nil)
	_ engine.Transactional = (*Engine)(nil)
)

// New creates the procedure engine over db.
func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Name implements engine.Engine.
func (e *Engine) Name() engine.Name { return engine.MySQL }

// Invoke implements engine.Engine.
func (e *Engine) Invoke(ctx context.Context, call engine.Call) (engine.Rows, error) {
	stmt, args := statement(call)

	rows, err := e.querier(ctx).QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out, err := collect(rows)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func statement(call engine.Call) (string, []any) {
	values := call.Positional()
	args := make([]any, 0, len(values)+1)
	args = append(args, call.Tenant)
	args = append(args, values...)

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	return fmt.Sprintf("CALL `%s`(%s)", call.Routine(), marks), args
}

// collect reads the first result set that has columns and drains the rest.
// A procedure always returns a trailing status result that carries none.
func collect(rows *sql.Rows) (engine.Rows, error) {
	var (
		out  engine.Rows
		done bool
	)
	for {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			if done {
				continue
			}
			row, err := scanRow(rows, cols)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(cols) > 0 {
			done = true
		}
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = engine.Rows{}
	}
	return out, nil
}

func scanRow(rows *sql.Rows, cols []string) (engine.Row, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(engine.Row, len(cols))
	for i, c := range cols {
		// The driver hands back text columns and DECIMALs as bytes.
		if b, ok := values[i].([]byte); ok {
			row[c] = string(b)
			continue
		}
		row[c] = values[i]
	}
	return row, nil
}

// Ping implements engine.Engine.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return classify(fmt.Errorf("ping: %w", err))
	}
	return nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	return e.db.Close()
}
