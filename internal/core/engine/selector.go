package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	appctx "docengine/internal/core/context"
)

type engineCtxKey struct{}

// WithEngine binds e to ctx. Every invocation made with the returned
// context is served by e, whatever the selector says later.
func WithEngine(ctx context.Context, e Engine) context.Context {
	ctx = context.WithValue(ctx, engineCtxKey{}, e)
	return appctx.WithEngineName(ctx, string(e.Name()))
}

// FromContext returns the engine bound to ctx, if any.
func FromContext(ctx context.Context) (Engine, bool) {
	e, ok := ctx.Value(engineCtxKey{}).(Engine)
	return e, ok && e != nil
}

// ErrUnknownEngine is returned when selecting an engine that was not registered.
var ErrUnknownEngine = errors.New("engine not registered")

type activeSlot struct {
	engine Engine
}

// Selector owns the registered engines and the process-wide active one.
type Selector struct {
	engines map[Name]Engine
	active  atomic.Pointer[activeSlot]
	onSwitch func(from, to Name)
}

// NewSelector registers engines and activates the named one.
func NewSelector(active Name, engines ...Engine) (*Selector, error) {
	if len(engines) == 0 {
		return nil, errors.New("at least one engine is required")
	}
	s := &Selector{engines: make(map[Name]Engine, len(engines))}
	for _, e := range engines {
		if _, dup := s.engines[e.Name()]; dup {
			return nil, fmt.Errorf("engine %s registered twice", e.Name())
		}
		s.engines[e.Name()] = e
	}
	if err := s.SetActive(active); err != nil {
		return nil, err
	}
	return s, nil
}

// OnSwitch registers a callback invoked after every successful switch.
// Must be called before the selector is shared.
func (s *Selector) OnSwitch(fn func(from, to Name)) {
	s.onSwitch = fn
}

// SetActive changes the process-wide engine. Requests already bound keep
// their engine; every request bound afterwards gets the new one.
func (s *Selector) SetActive(name Name) error {
	e, ok := s.engines[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	prev := s.active.Swap(&activeSlot{engine: e})
	if s.onSwitch != nil && prev != nil && prev.engine.Name() != name {
		s.onSwitch(prev.engine.Name(), name)
	}
	return nil
}

// Active returns the engine currently selected.
func (s *Selector) Active() Engine {
	return s.active.Load().engine
}

// Get returns a registered engine by name.
func (s *Selector) Get(name Name) (Engine, bool) {
	e, ok := s.engines[name]
	return e, ok
}

// Available lists registered engine names.
func (s *Selector) Available() []Name {
	out := make([]Name, 0, len(s.engines))
	for n := range s.engines {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bind resolves the active engine once and attaches it to ctx.
// A context that is already bound is returned unchanged.
func (s *Selector) Bind(ctx context.Context) context.Context {
	if _, ok := FromContext(ctx); ok {
		return ctx
	}
	return WithEngine(ctx, s.Active())
}

// Close closes every registered engine.
func (s *Selector) Close() error {
	var errs []error
	for _, e := range s.engines {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
