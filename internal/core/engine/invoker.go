package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docengine/pkg/logger"
)

var tracer = otel.Tracer("docengine/engine")

// Observer receives one notification per invocation.
type Observer interface {
	ObserveInvoke(engine Name, op Operation, outcome string, elapsed time.Duration)
}

// Invoker dispatches operations to the engine bound to the request.
type Invoker struct {
	selector *Selector
	observer Observer
}

// NewInvoker creates an invoker. observer may be nil.
func NewInvoker(selector *Selector, observer Observer) *Invoker {
	return &Invoker{selector: selector, observer: observer}
}

// Engine returns the engine that serves ctx: the bound one, or the active one
// for contexts that were never bound (background jobs, tests).
func (i *Invoker) Engine(ctx context.Context) Engine {
	if e, ok := FromContext(ctx); ok {
		return e
	}
	return i.selector.Active()
}

// Invoke validates call against its signature and runs it on the engine serving ctx.
func (i *Invoker) Invoke(ctx context.Context, call Call) (Rows, error) {
	eng := i.Engine(ctx)

	if _, err := call.Validate(); err != nil {
		i.observe(eng.Name(), call.Op, err, 0)
		return nil, normalize(eng.Name(), call.Op, err)
	}

	ctx, span := tracer.Start(ctx, "engine.invoke",
		trace.WithAttributes(
			attribute.String("engine.name", string(eng.Name())),
			attribute.String("engine.op", string(call.Op)),
			attribute.String("tenant.schema", call.Tenant),
		))
	defer span.End()

	start := time.Now()
	rows, err := eng.Invoke(ctx, call)
	elapsed := time.Since(start)

	err = normalize(eng.Name(), call.Op, err)
	i.observe(eng.Name(), call.Op, err, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
		logger.Debug(ctx, "engine invoke failed",
			"op", call.String(),
			"kind", KindOf(err).String(),
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}
	return rows, nil
}

// InvokeOne is Invoke returning the first row, or NotFound on an empty result.
func (i *Invoker) InvokeOne(ctx context.Context, call Call) (Row, error) {
	rows, err := i.Invoke(ctx, call)
	if err != nil {
		return nil, err
	}
	row, err := rows.First()
	if err != nil {
		return nil, normalize(i.Engine(ctx).Name(), call.Op, err)
	}
	return row, nil
}

// Transactional returns the transaction capability of the engine serving ctx.
func (i *Invoker) Transactional(ctx context.Context) (Transactional, bool) {
	return AsTransactional(i.Engine(ctx))
}

func (i *Invoker) observe(name Name, op Operation, err error, elapsed time.Duration) {
	if i.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	i.observer.ObserveInvoke(name, op, outcome, elapsed)
}
