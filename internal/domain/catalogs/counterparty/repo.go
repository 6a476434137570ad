package counterparty

import (
	"context"
	"fmt"
	"strings"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
)

// Repository defines the interface for Counterparty lookups.
type Repository interface {
	// FindByCode returns nil without error when no party has the code.
	FindByCode(ctx context.Context, schema string, role dockind.PartyRole, code string) (*Counterparty, error)
}

// EngineRepository reads parties through the engine bound to the request.
type EngineRepository struct {
	invoker *engine.Invoker
}

// NewEngineRepository creates a repository over invoker.
func NewEngineRepository(invoker *engine.Invoker) *EngineRepository {
	return &EngineRepository{invoker: invoker}
}

func (r *EngineRepository) FindByCode(ctx context.Context, schema string, role dockind.PartyRole, code string) (*Counterparty, error) {
	op := engine.OpGetClient
	if role == dockind.PartySupplier {
		op = engine.OpGetSupplier
	}

	rows, err := r.invoker.Invoke(ctx, engine.NewCall(op, schema, engine.Args{
		engine.ArgCode: strings.TrimSpace(code),
	}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var cp Counterparty
	if err := engine.Decode(rows[0], &cp); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", role, code, err)
	}
	cp.Role = role
	return &cp, nil
}

var _ Repository = (*EngineRepository)(nil)
