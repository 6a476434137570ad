// Package numerator implements document numbering over the operation invoker.
// It implements core/numerator.Allocator for every engine.
package numerator

import (
	"context"
	"fmt"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
	corenumerator "docengine/internal/core/numerator"
	"docengine/pkg/logger"
)

// Service allocates numbers through the engine bound to the request.
// Engines implement allocate_number as one atomic upsert on a per-(schema, kind)
// counter seeded from the stored maximum, so a number is never handed out twice.
// A collision with a header written outside the engine still surfaces as
// Conflict at insert time and is not retried here.
type Service struct {
	invoker *engine.Invoker
}

// Ensure compile-time interface compliance.
var _ corenumerator.Allocator = (*Service)(nil)

// New creates a numerator service.
func New(invoker *engine.Invoker) *Service {
	return &Service{invoker: invoker}
}

// Allocate reserves the next number for kind in schema.
func (s *Service) Allocate(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}
	n, err := s.number(ctx, engine.OpAllocateNumber, schema, kind)
	if err != nil {
		return 0, fmt.Errorf("allocate %s number: %w", kind.Kind, err)
	}
	logger.Debug(ctx, "number allocated", "kind", kind.Kind, "number", n)
	return n, nil
}

// Peek previews the next number without reserving it.
func (s *Service) Peek(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error) {
	n, err := s.number(ctx, engine.OpPeekNumber, schema, kind)
	if err != nil {
		return 0, fmt.Errorf("peek %s number: %w", kind.Kind, err)
	}
	return n, nil
}

func (s *Service) number(ctx context.Context, op engine.Operation, schema string, kind dockind.Descriptor) (int64, error) {
	row, err := s.invoker.InvokeOne(ctx, engine.NewCall(op, schema, engine.Args{}).ForKind(kind))
	if err != nil {
		return 0, err
	}
	n, err := engine.ToInt64(row["number"])
	if err != nil {
		return 0, engine.Wrap(engine.KindUnknown, fmt.Errorf("number column: %w", err))
	}
	if n < 1 {
		return 0, engine.Errorf(engine.KindUnknown, "engine returned number %d", n)
	}
	return n, nil
}
