package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	execs      []string
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx     *fakeTx
	begins int
}

func (b *fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	return b.tx, nil
}

func (b *fakeBeginner) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (b *fakeBeginner) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBeginner) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func newFakeManager() (*TxManager, *fakeBeginner) {
	b := &fakeBeginner{tx: &fakeTx{}}
	return NewTxManagerFrom(b), b
}

func TestRunInTransaction_Commit(t *testing.T) {
	m, b := newFakeManager()

	err := m.RunInTransaction(context.Background(), func(ctx context.Context) error {
		assert.True(t, m.InTransaction(ctx))
		assert.Equal(t, b.tx, m.GetQuerier(ctx))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, b.tx.committed)
	assert.False(t, b.tx.rolledBack)
	require.NotEmpty(t, b.tx.execs)
	assert.Contains(t, b.tx.execs[0], "statement_timeout")
}

func TestRunInTransaction_RollbackReturnsCause(t *testing.T) {
	m, b := newFakeManager()
	boom := errors.New("boom")

	err := m.RunInTransaction(context.Background(), func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.True(t, b.tx.rolledBack)
	assert.False(t, b.tx.committed)
}

func TestRunInTransaction_NestedJoinsOuter(t *testing.T) {
	m, b := newFakeManager()

	err := m.RunInTransaction(context.Background(), func(ctx context.Context) error {
		return m.RunInTransaction(ctx, func(context.Context) error { return nil })
	})

	require.NoError(t, err)
	assert.Equal(t, 1, b.begins)
}

func TestRunInSavepoint(t *testing.T) {
	m, b := newFakeManager()
	boom := errors.New("line failed")

	err := m.RunInTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, m.RunInSavepoint(ctx, func(context.Context) error { return nil }))
		assert.ErrorIs(t, m.RunInSavepoint(ctx, func(context.Context) error { return boom }), boom)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, b.tx.committed, "a failed savepoint leaves the transaction usable")
	assert.Equal(t, []string{
		"SAVEPOINT sp_1",
		"RELEASE SAVEPOINT sp_1",
		"SAVEPOINT sp_2",
		"ROLLBACK TO SAVEPOINT sp_2",
	}, b.tx.execs[1:])
}

func TestRunInSavepoint_WithoutTransaction(t *testing.T) {
	m, b := newFakeManager()
	ran := false

	err := m.RunInSavepoint(context.Background(), func(ctx context.Context) error {
		ran = true
		assert.Equal(t, b, m.GetQuerier(ctx))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, b.tx.execs)
}

func TestTransactionIsScopedToManager(t *testing.T) {
	m1, _ := newFakeManager()
	m2, _ := newFakeManager()

	err := m1.RunInTransaction(context.Background(), func(ctx context.Context) error {
		assert.NotNil(t, m1.GetTx(ctx))
		assert.Nil(t, m2.GetTx(ctx))
		return nil
	})
	require.NoError(t, err)
}
