package nomenclature

import (
	"context"
	"fmt"
	"strings"

	"docengine/internal/core/apperror"
)

// Service provides business logic for article validation.
type Service struct {
	repo Repository
}

// NewService creates a new article service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RequireAll loads every distinct code, in first-seen order.
// The first unknown code fails the whole batch.
func (s *Service) RequireAll(ctx context.Context, schema string, codes []string) (map[string]*Article, error) {
	out := make(map[string]*Article, len(codes))
	for i, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			return nil, apperror.NewValidation(fmt.Sprintf("line %d: article code is required", i+1)).
				WithDetail("field", fmt.Sprintf("lines[%d].article_code", i))
		}
		if _, seen := out[code]; seen {
			continue
		}

		a, err := s.repo.FindByCode(ctx, schema, code)
		if err != nil {
			return nil, fmt.Errorf("get article %s: %w", code, err)
		}
		if a == nil {
			return nil, apperror.NewValidation(fmt.Sprintf("article %s does not exist", code)).
				WithDetail("field", fmt.Sprintf("lines[%d].article_code", i)).
				WithDetail("value", code)
		}
		out[code] = a
	}
	return out, nil
}
