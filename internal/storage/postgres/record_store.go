package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/location-crawler/internal/location"
)

const defaultRecordsTable = "locations"

// RecordStore upserts location records keyed by identifier.
type RecordStore struct {
	pool  txBeginner
	table string
	now   func() time.Time
}

// NewRecordStore wraps an existing pool. *pgxpool.Pool and pgxmock pools both satisfy it.
func NewRecordStore(pool txBeginner, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table, defaultRecordsTable)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: table, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the records table if it is missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identifier     TEXT PRIMARY KEY,
	location_type  TEXT NOT NULL,
	location_index INTEGER NOT NULL,
	name           TEXT NOT NULL,
	area           TEXT NOT NULL,
	url            TEXT NOT NULL,
	url_api        TEXT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// UpsertRecords writes recs in one transaction and returns how many were written.
func (s *RecordStore) UpsertRecords(ctx context.Context, recs []location.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	identifier,
	location_type,
	location_index,
	name,
	area,
	url,
	url_api,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (identifier) DO UPDATE SET
	name = EXCLUDED.name,
	area = EXCLUDED.area,
	url = EXCLUDED.url,
	url_api = EXCLUDED.url_api,
	updated_at = EXCLUDED.updated_at`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	at := s.now().UTC()
	for _, rec := range recs {
		if rec.Identifier == "" {
			return 0, fmt.Errorf("record at index %d has no identifier", rec.Index)
		}
		if _, err := tx.Exec(ctx, query,
			rec.Identifier,
			string(rec.Type),
			rec.Index,
			rec.Name,
			rec.Area,
			rec.CanonicalURL,
			rec.APIURL,
			at,
		); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", rec.Identifier, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(recs), nil
}
