package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/core/tenant"
)

type fakeStore struct {
	tenants  []*tenant.Tenant
	created  *tenant.Tenant
	statuses map[string]tenant.Status
}

func (f *fakeStore) ListAll(context.Context) ([]*tenant.Tenant, error) { return f.tenants, nil }

func (f *fakeStore) Create(_ context.Context, t *tenant.Tenant) error {
	f.created = t
	return nil
}

func (f *fakeStore) SetStatus(_ context.Context, schema string, status tenant.Status) error {
	if f.statuses == nil {
		f.statuses = map[string]tenant.Status{}
	}
	f.statuses[schema] = status
	return nil
}

func TestRun_Add(t *testing.T) {
	s := &fakeStore{}
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), s, &out, []string{"add", "2025", "BU01", "Main", "branch"}))

	require.NotNil(t, s.created)
	assert.Equal(t, "2025_bu01", s.created.Schema)
	assert.Equal(t, 2025, s.created.FiscalYear)
	assert.Equal(t, "bu01", s.created.BusinessUnit)
	assert.Equal(t, "Main branch", s.created.DisplayName)
	assert.Equal(t, tenant.StatusActive, s.created.Status)
	assert.Contains(t, out.String(), "2025_bu01")
}

func TestRun_AddRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"missing bu":  {"add", "2025"},
		"bad year":    {"add", "twenty", "bu01"},
		"bad bu char": {"add", "2025", "bu-01"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			s := &fakeStore{}
			err := run(context.Background(), s, &bytes.Buffer{}, args)
			assert.Error(t, err)
			assert.Nil(t, s.created)
		})
	}
}

func TestRun_CloseAndReopen(t *testing.T) {
	s := &fakeStore{}

	require.NoError(t, run(context.Background(), s, &bytes.Buffer{}, []string{"close", "2024_bu01"}))
	assert.Equal(t, tenant.StatusClosed, s.statuses["2024_bu01"])

	require.NoError(t, run(context.Background(), s, &bytes.Buffer{}, []string{"reopen", "2024_bu01"}))
	assert.Equal(t, tenant.StatusActive, s.statuses["2024_bu01"])

	assert.ErrorIs(t, run(context.Background(), s, &bytes.Buffer{}, []string{"close"}), errUsage)
}

func TestRun_List(t *testing.T) {
	s := &fakeStore{tenants: []*tenant.Tenant{
		{Schema: "2025_bu01", FiscalYear: 2025, BusinessUnit: "bu01", DisplayName: "Main", Status: tenant.StatusActive},
		{Schema: "2024_bu01", FiscalYear: 2024, BusinessUnit: "bu01", DisplayName: "Main", Status: tenant.StatusClosed},
	}}
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), s, &out, []string{"list"}))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "SCHEMA")
	assert.Contains(t, string(lines[2]), "closed")
}

func TestRun_ListEmptyAndUnknown(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &fakeStore{}, &out, []string{"list"}))
	assert.Equal(t, "No tenants found\n", out.String())

	assert.ErrorIs(t, run(context.Background(), &fakeStore{}, &out, []string{"migrate"}), errUsage)
}
