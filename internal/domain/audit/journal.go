// Package audit records write-phase anomalies that need manual reconciliation:
// documents left without all their lines and skipped stock adjustments.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appctx "docengine/internal/core/context"
)

// EntryType classifies a reconciliation entry.
type EntryType string

const (
	// EntryPartialWrite - header persisted, a later line write failed
	EntryPartialWrite EntryType = "partial_write"

	// EntryStockSkipped - document persisted, a stock adjustment failed
	EntryStockSkipped EntryType = "stock_skipped"

	// EntryMarkSkipped - invoice persisted, a delivery note could not be marked invoiced
	EntryMarkSkipped EntryType = "mark_skipped"
)

// Entry is one reconciliation record.
type Entry struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	Type      EntryType      `db:"entry_type" json:"type"`
	Schema    string         `db:"schema_name" json:"schema"`
	Engine    string         `db:"engine" json:"engine"`
	Kind      string         `db:"doc_kind" json:"kind"`
	Number    int64          `db:"doc_number" json:"number"`
	Detail    map[string]any `db:"-" json:"detail,omitempty"`
	TraceID   string         `db:"trace_id" json:"trace_id,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	Resolved  bool           `db:"resolved" json:"resolved"`
}

// Prepare fills ID, timestamp and request labels that are not set yet.
func (e *Entry) Prepare(ctx context.Context, now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	if e.Engine == "" {
		e.Engine = appctx.GetEngineName(ctx)
	}
	if e.TraceID == "" {
		e.TraceID = appctx.GetTraceID(ctx)
	}
}

// Journal persists reconciliation entries. Implementations must not
// participate in the caller's transaction: entries survive its rollback.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
}

// NopJournal discards entries.
type NopJournal struct{}

func (NopJournal) Record(context.Context, Entry) error { return nil }

// MemoryJournal keeps entries in memory. Used by tests and as a fallback
// when no meta database is configured.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func (j *MemoryJournal) Record(ctx context.Context, entry Entry) error {
	entry.Prepare(ctx, time.Now())
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (j *MemoryJournal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// OfType returns recorded entries of type t.
func (j *MemoryJournal) OfType(t EntryType) []Entry {
	var out []Entry
	for _, e := range j.Entries() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ Journal = NopJournal{}
	_ Journal = (*MemoryJournal)(nil)
)
