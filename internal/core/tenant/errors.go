package tenant

import "errors"

var (
	// ErrTenantNotFound is returned for unknown, malformed or inactive tenants.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrNoTenantInContext is returned when a request reached the core unresolved.
	ErrNoTenantInContext = errors.New("tenant not found in context")
)
