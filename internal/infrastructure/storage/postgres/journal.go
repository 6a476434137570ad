package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"docengine/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm used for entry details.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the detail size above which payloads are compressed.
const DefaultCompressThreshold = 4 * 1024

// Journal stores reconciliation entries in sys_reconciliation of the meta
// database. It writes through its own pool, never through a tenant transaction,
// so entries outlive a rolled back document.
type Journal struct {
	db                Querier
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	now               func() time.Time
}

var _ audit.Journal = (*Journal)(nil)

// NewJournal creates a journal writing to db.
func NewJournal(db Querier) (*Journal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Journal{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
		now:               time.Now,
	}, nil
}

// SetCompressThreshold changes the compression threshold in bytes.
func (j *Journal) SetCompressThreshold(n int) {
	j.compressThreshold = n
}

// Record implements audit.Journal.
func (j *Journal) Record(ctx context.Context, entry audit.Entry) error {
	entry.Prepare(ctx, j.now())

	detail, compressed, algo, err := j.encodeDetail(entry.Detail)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO sys_reconciliation (
			id, entry_type, schema_name, engine, doc_kind, doc_number,
			detail, detail_compressed, compression_algo, trace_id,
			created_at, resolved
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	// The caller may already be cancelled (a failed request); the entry must still land.
	_, err = j.db.Exec(context.WithoutCancel(ctx), sql,
		entry.ID, entry.Type, entry.Schema, entry.Engine, entry.Kind, entry.Number,
		detail, compressed, algo, entry.TraceID,
		entry.CreatedAt, entry.Resolved,
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation entry: %w", err)
	}
	return nil
}

func (j *Journal) encodeDetail(detail map[string]any) (json.RawMessage, []byte, CompressionAlgo, error) {
	if len(detail) == 0 {
		return nil, nil, CompressionNone, nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, nil, "", fmt.Errorf("marshal detail: %w", err)
	}
	if len(raw) > j.compressThreshold {
		return nil, j.encoder.EncodeAll(raw, nil), CompressionZstd, nil
	}
	return raw, nil, CompressionNone, nil
}

func (j *Journal) decodeDetail(algo CompressionAlgo, raw json.RawMessage, compressed []byte) (map[string]any, error) {
	if algo == CompressionZstd && len(compressed) > 0 {
		decompressed, err := j.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress detail: %w", err)
		}
		raw = decompressed
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	return out, nil
}

// ListUnresolved returns the oldest unresolved entries first.
func (j *Journal) ListUnresolved(ctx context.Context, limit int) ([]audit.Entry, error) {
	sql := `
		SELECT id, entry_type, schema_name, engine, doc_kind, doc_number,
			   detail, detail_compressed, compression_algo, trace_id,
			   created_at, resolved
		FROM sys_reconciliation
		WHERE resolved = false
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := j.db.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query reconciliation entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			raw        []byte
			compressed []byte
			algo       CompressionAlgo
			traceID    *string
		)
		err := rows.Scan(
			&e.ID, &e.Type, &e.Schema, &e.Engine, &e.Kind, &e.Number,
			&raw, &compressed, &algo, &traceID,
			&e.CreatedAt, &e.Resolved,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if traceID != nil {
			e.TraceID = *traceID
		}
		if e.Detail, err = j.decodeDetail(algo, raw, compressed); err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Resolve marks an entry as reconciled.
func (j *Journal) Resolve(ctx context.Context, id uuid.UUID) error {
	tag, err := j.db.Exec(ctx, `UPDATE sys_reconciliation SET resolved = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("resolve entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reconciliation entry %s not found", id)
	}
	return nil
}
