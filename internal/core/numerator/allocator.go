// Package numerator provides domain contracts for document numbering.
// Implementations live in infrastructure layer.
package numerator

import (
	"context"

	"docengine/internal/core/dockind"
)

// Allocator hands out document numbers per (tenant schema, kind).
type Allocator interface {
	// Allocate reserves the next number. Two calls never return the same
	// number for the same schema and kind, and the result is always greater
	// than every number already stored.
	Allocate(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error)

	// Peek returns max(existing)+1, or 1 when no document exists.
	// Nothing is reserved; the value is a preview only.
	Peek(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error)
}
