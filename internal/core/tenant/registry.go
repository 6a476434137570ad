package tenant

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
)

// Registry provides access to tenant metadata.
type Registry interface {
	// Get retrieves a tenant by schema name.
	Get(ctx context.Context, schema string) (*Tenant, error)

	// ListActive returns all active tenants.
	ListActive(ctx context.Context) ([]*Tenant, error)
}

// PostgresRegistry implements Registry over the meta-database table "tenants".
type PostgresRegistry struct {
	db pgxscan.Querier
}

// NewPostgresRegistry creates a registry. db is usually a *pgxpool.Pool.
func NewPostgresRegistry(db pgxscan.Querier) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) Get(ctx context.Context, schema string) (*Tenant, error) {
	var t Tenant
	err := pgxscan.Get(ctx, r.db, &t, `
		SELECT schema_name, business_unit, fiscal_year, display_name, status, created_at
		FROM tenants
		WHERE schema_name = $1
	`, schema)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant %s: %w", schema, err)
	}
	return &t, nil
}

func (r *PostgresRegistry) ListActive(ctx context.Context) ([]*Tenant, error) {
	var tenants []*Tenant
	err := pgxscan.Select(ctx, r.db, &tenants, `
		SELECT schema_name, business_unit, fiscal_year, display_name, status, created_at
		FROM tenants
		WHERE status = $1
		ORDER BY schema_name
	`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return tenants, nil
}

// StaticRegistry serves a fixed tenant list, typically from configuration.
type StaticRegistry struct {
	tenants map[string]*Tenant
}

// NewStaticRegistry builds a registry of active tenants from schema names.
// Schemas of the form "<year>_<bu>" get their year and business unit filled in.
func NewStaticRegistry(schemas ...string) (*StaticRegistry, error) {
	r := &StaticRegistry{tenants: make(map[string]*Tenant, len(schemas))}
	for _, s := range schemas {
		s = strings.TrimSpace(s)
		if err := ValidateSchema(s); err != nil {
			return nil, fmt.Errorf("static tenant: %w", err)
		}
		t := &Tenant{Schema: s, DisplayName: s, Status: StatusActive}
		if year, bu, ok := strings.Cut(s, "_"); ok {
			if y, err := strconv.Atoi(year); err == nil {
				t.FiscalYear = y
				t.BusinessUnit = bu
			}
		}
		r.tenants[s] = t
	}
	return r, nil
}

func (r *StaticRegistry) Get(_ context.Context, schema string) (*Tenant, error) {
	t, ok := r.tenants[schema]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *StaticRegistry) ListActive(_ context.Context) ([]*Tenant, error) {
	out := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if t.IsActive() {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Schema < out[j].Schema })
	return out, nil
}

// ListAll returns every tenant regardless of status.
func (r *PostgresRegistry) ListAll(ctx context.Context) ([]*Tenant, error) {
	var tenants []*Tenant
	err := pgxscan.Select(ctx, r.db, &tenants, `
		SELECT schema_name, business_unit, fiscal_year, display_name, status, created_at
		FROM tenants
		ORDER BY fiscal_year DESC, business_unit
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// Create registers t and notifies listeners on NotifyChannel.
// CreatedAt is filled from the database.
func (r *PostgresRegistry) Create(ctx context.Context, t *Tenant) error {
	if err := ValidateSchema(t.Schema); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	err := pgxscan.Get(ctx, r.db, &t.CreatedAt, `
		WITH ins AS (
			INSERT INTO tenants (schema_name, business_unit, fiscal_year, display_name, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		), n AS (
			SELECT pg_notify($6, $1)
		)
		SELECT ins.created_at FROM ins, n
	`, t.Schema, t.BusinessUnit, t.FiscalYear, t.DisplayName, t.Status, NotifyChannel)
	if err != nil {
		return fmt.Errorf("create tenant %s: %w", t.Schema, err)
	}
	return nil
}

// SetStatus changes the status of a tenant and notifies listeners.
func (r *PostgresRegistry) SetStatus(ctx context.Context, schema string, status Status) error {
	var updated string
	err := pgxscan.Get(ctx, r.db, &updated, `
		WITH upd AS (
			UPDATE tenants SET status = $2
			WHERE schema_name = $1
			RETURNING schema_name
		), n AS (
			SELECT pg_notify($3, $1)
		)
		SELECT upd.schema_name FROM upd, n
	`, schema, status, NotifyChannel)
	if err != nil {
		if pgxscan.NotFound(err) {
			return ErrTenantNotFound
		}
		return fmt.Errorf("set tenant %s status: %w", schema, err)
	}
	return nil
}

var (
	_ Registry = (*PostgresRegistry)(nil)
	_ Registry = (*StaticRegistry)(nil)
)
