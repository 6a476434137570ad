package numerator

import (
	"context"
	"sync"

	"docengine/internal/core/dockind"
)

// MockAllocator is a test implementation of Allocator.
// Without funcs set it counts from 1 per (schema, kind).
type MockAllocator struct {
	AllocateFunc func(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error)
	PeekFunc     func(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error)

	mu   sync.Mutex
	next map[string]int64
}

// Allocate implements Allocator.
func (m *MockAllocator) Allocate(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error) {
	if m.AllocateFunc != nil {
		return m.AllocateFunc(ctx, schema, kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next == nil {
		m.next = make(map[string]int64)
	}
	key := schema + ":" + string(kind.Kind)
	m.next[key]++
	return m.next[key], nil
}

// Peek implements Allocator.
func (m *MockAllocator) Peek(ctx context.Context, schema string, kind dockind.Descriptor) (int64, error) {
	if m.PeekFunc != nil {
		return m.PeekFunc(ctx, schema, kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next[schema+":"+string(kind.Kind)] + 1, nil
}

// Ensure compile-time interface compliance.
var _ Allocator = (*MockAllocator)(nil)
