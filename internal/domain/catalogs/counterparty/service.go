package counterparty

import (
	"context"
	"fmt"
	"strings"

	"docengine/internal/core/apperror"
	"docengine/internal/core/dockind"
)

// Service provides business logic for party validation.
type Service struct {
	repo Repository
}

// NewService creates a new Counterparty service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Require returns the party referenced by a document.
// An unknown code is a validation error of the request.
func (s *Service) Require(ctx context.Context, schema string, role dockind.PartyRole, code string) (*Counterparty, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.NewValidation(fmt.Sprintf("%s code is required", role)).
			WithDetail("field", "party_code")
	}

	cp, err := s.repo.FindByCode(ctx, schema, role, code)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", role, code, err)
	}
	if cp == nil {
		return nil, apperror.NewValidation(fmt.Sprintf("%s %s does not exist", role, code)).
			WithDetail("field", "party_code").
			WithDetail("value", code)
	}
	return cp, nil
}
