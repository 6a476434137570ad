package nomenclature

import (
	"context"
	"fmt"
	"strings"

	"docengine/internal/core/engine"
)

// Repository defines the interface for Article lookups.
type Repository interface {
	// FindByCode returns nil without error when no article has the code.
	FindByCode(ctx context.Context, schema, code string) (*Article, error)
}

// EngineRepository reads articles through the engine bound to the request.
type EngineRepository struct {
	invoker *engine.Invoker
}

// NewEngineRepository creates a repository over invoker.
func NewEngineRepository(invoker *engine.Invoker) *EngineRepository {
	return &EngineRepository{invoker: invoker}
}

func (r *EngineRepository) FindByCode(ctx context.Context, schema, code string) (*Article, error) {
	rows, err := r.invoker.Invoke(ctx, engine.NewCall(engine.OpGetArticle, schema, engine.Args{
		engine.ArgCode: strings.TrimSpace(code),
	}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var a Article
	if err := engine.Decode(rows[0], &a); err != nil {
		return nil, fmt.Errorf("decode article %s: %w", code, err)
	}
	return &a, nil
}

var _ Repository = (*EngineRepository)(nil)
