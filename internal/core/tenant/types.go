// Package tenant resolves inbound tenant identifiers to the schema that holds
// the tenant's data. Every tenant lives in its own schema named
// "<fiscal year>_<business unit>" in each configured engine.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status represents tenant lifecycle state.
type Status string

const (
	// StatusActive - tenant can accept requests
	StatusActive Status = "active"

	// StatusClosed - fiscal year closed, schema kept read-only elsewhere
	StatusClosed Status = "closed"
)

// NotifyChannel is the NOTIFY channel signalled when a tenant row changes.
// The payload is the schema name.
const NotifyChannel = "tenants_changed"

// MaxSchemaLength is the PostgreSQL identifier limit.
const MaxSchemaLength = 63

var schemaPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Tenant represents a tenant record from the meta database.
type Tenant struct {
	Schema       string    `db:"schema_name" json:"schema"`
	BusinessUnit string    `db:"business_unit" json:"business_unit"`
	FiscalYear   int       `db:"fiscal_year" json:"fiscal_year"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	Status       Status    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IsActive returns true if tenant can accept requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// ValidateSchema checks that id can be used as a quoted schema name.
// Only letters, digits and underscores are accepted.
func ValidateSchema(id string) error {
	if id == "" || len(id) > MaxSchemaLength || !schemaPattern.MatchString(id) {
		return fmt.Errorf("%w: malformed identifier %q", ErrTenantNotFound, truncate(id))
	}
	return nil
}

// ComposeSchema builds the schema name for a fiscal year and business unit.
func ComposeSchema(year, businessUnit string) (string, error) {
	year = strings.TrimSpace(year)
	businessUnit = strings.ToLower(strings.TrimSpace(businessUnit))
	if year == "" || businessUnit == "" {
		return "", fmt.Errorf("%w: year and business unit are required", ErrTenantNotFound)
	}
	schema := year + "_" + businessUnit
	if err := ValidateSchema(schema); err != nil {
		return "", err
	}
	return schema, nil
}

func truncate(s string) string {
	if len(s) > MaxSchemaLength {
		return s[:MaxSchemaLength] + "..."
	}
	return s
}
