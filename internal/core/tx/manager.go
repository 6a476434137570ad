// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple domain logic from specific
// database implementations, following the Dependency Inversion Principle.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, and nested transaction support.
//
// Domain services depend on this interface, not concrete implementations.
// Implementations live in infrastructure/storage (postgres, mysql).
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SavepointManager runs fn under a savepoint of the transaction in ctx.
// A failing fn rolls back to the savepoint only; the enclosing transaction
// stays usable. Without a transaction in ctx, fn runs as is.
type SavepointManager interface {
	RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}
