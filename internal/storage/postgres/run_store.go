package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/location-crawler/internal/crawler"
	"github.com/JakeFAU/location-crawler/internal/location"
)

const defaultRunsTable = "crawl_runs"

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunStore records one row per crawl run.
type RunStore struct {
	pool  execCloser
	table string
}

// NewRunStore wraps an existing pool.
func NewRunStore(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table, defaultRunsTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the runs table if it is missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            UUID PRIMARY KEY,
	location_type TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	error_message TEXT,
	chunks        INTEGER NOT NULL DEFAULT 0,
	fetched       INTEGER NOT NULL DEFAULT 0,
	written       INTEGER NOT NULL DEFAULT 0,
	absent        INTEGER NOT NULL DEFAULT 0,
	chunk_start   INTEGER NOT NULL DEFAULT 0,
	scrape_index  INTEGER NOT NULL DEFAULT 0
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// StartRun inserts a running row for runID.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, typ location.Type, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, location_type, started_at, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, string(typ), startedAt, RunRunning); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of runID. runErr decides the status.
func (s *RunStore) FinishRun(ctx context.Context, summary crawler.Summary, runErr error) error {
	status := RunSucceeded
	var errMsg *string
	if runErr != nil {
		status = RunFailed
		msg := runErr.Error()
		errMsg = &msg
	}
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, error_message = $3,
	chunks = $4, fetched = $5, written = $6, absent = $7,
	chunk_start = $8, scrape_index = $9
WHERE id = $10`, s.table)
	_, err := s.pool.Exec(ctx, query,
		summary.StartedAt.Add(summary.Duration),
		status,
		errMsg,
		summary.ChunksTouched,
		summary.Fetched,
		summary.Written,
		summary.Absent,
		summary.Final.ChunkStart,
		summary.Final.ScrapeIndex,
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run finish: %w", err)
	}
	return nil
}
