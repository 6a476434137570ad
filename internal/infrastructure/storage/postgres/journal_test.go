package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/internal/domain/audit"
)

type recordingQuerier struct {
	sql  string
	args []any
	err  error
}

func (q *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	q.sql = sql
	q.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), q.err
}

func (q *recordingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *recordingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func newTestJournal(t *testing.T) (*Journal, *recordingQuerier) {
	t.Helper()
	q := &recordingQuerier{}
	j, err := NewJournal(q)
	require.NoError(t, err)
	j.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return j, q
}

func TestJournalRecord_SmallDetailStaysPlain(t *testing.T) {
	j, q := newTestJournal(t)

	err := j.Record(context.Background(), audit.Entry{
		Type:   audit.EntryPartialWrite,
		Schema: "2025_bu01",
		Kind:   "delivery_note",
		Number: 12,
		Detail: map[string]any{"lines_written": 1},
	})
	require.NoError(t, err)

	assert.Contains(t, q.sql, "INSERT INTO sys_reconciliation")
	require.Len(t, q.args, 12)
	assert.Equal(t, audit.EntryPartialWrite, q.args[1])
	assert.Equal(t, int64(12), q.args[5])
	assert.JSONEq(t, `{"lines_written":1}`, string(q.args[6].(json.RawMessage)))
	assert.Nil(t, q.args[7])
	assert.Equal(t, CompressionNone, q.args[8])
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), q.args[10])
}

func TestJournalRecord_LargeDetailIsCompressed(t *testing.T) {
	j, q := newTestJournal(t)
	j.SetCompressThreshold(64)
	detail := map[string]any{"error": strings.Repeat("constraint violated ", 20)}

	require.NoError(t, j.Record(context.Background(), audit.Entry{Type: audit.EntryStockSkipped, Detail: detail}))

	assert.Nil(t, q.args[6])
	assert.Equal(t, CompressionZstd, q.args[8])
	compressed := q.args[7].([]byte)
	require.NotEmpty(t, compressed)

	back, err := j.decodeDetail(CompressionZstd, nil, compressed)
	require.NoError(t, err)
	assert.Equal(t, detail["error"], back["error"])
}

func TestJournalRecord_SurvivesCancelledCaller(t *testing.T) {
	j, q := newTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, j.Record(ctx, audit.Entry{Type: audit.EntryPartialWrite}))
	assert.NotEmpty(t, q.sql)
}

func TestJournalRecord_InsertError(t *testing.T) {
	j, q := newTestJournal(t)
	q.err = errors.New("relation does not exist")

	err := j.Record(context.Background(), audit.Entry{Type: audit.EntryPartialWrite})
	assert.ErrorContains(t, err, "insert reconciliation entry")
}
