// Package engine holds the storage engine abstraction: one capability
// interface implemented by every backend, the operation signature table that
// keeps backends symmetric, error normalization, the process-wide selector and
// the invoker that dispatches operations to the engine bound to a request.
package engine

import (
	"context"
	"fmt"

	"docengine/internal/core/tx"
)

// Name identifies a storage engine.
type Name string

const (
	// Supabase calls Postgres functions with named parameters.
	Supabase Name = "supabase"
	// MySQL calls stored procedures with positional parameters.
	MySQL Name = "mysql"
	// Postgres issues parameterized SQL against the tenant schema.
	Postgres Name = "postgresql"
)

// ParseName normalizes an engine name from config or an admin request.
func ParseName(s string) (Name, error) {
	switch s {
	case "supabase", "rpc":
		return Supabase, nil
	case "mysql", "procedure":
		return MySQL, nil
	case "postgresql", "postgres", "pg", "sql":
		return Postgres, nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// Engine is the capability every backend provides.
type Engine interface {
	Name() Name
	// Invoke runs one abstract operation. Errors must be *Error.
	Invoke(ctx context.Context, call Call) (Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

// Transactional is implemented by engines that can group several
// invocations into one storage transaction.
type Transactional interface {
	tx.Manager
	tx.SavepointManager
}

// AsTransactional reports whether e supports transactions.
func AsTransactional(e Engine) (Transactional, bool) {
	t, ok := e.(Transactional)
	return t, ok
}
