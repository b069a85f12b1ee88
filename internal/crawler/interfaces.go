package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/location-crawler/internal/chunk"
	"github.com/JakeFAU/location-crawler/internal/location"
	"github.com/JakeFAU/location-crawler/internal/resume"
)

// Fetcher resolves one identifier. found=false with a nil error means absent.
type Fetcher interface {
	Fetch(ctx context.Context, id location.Identifier) (location.Record, bool, error)
}

// ChunkStore persists records per chunk.
type ChunkStore interface {
	List() ([]chunk.Range, error)
	Ensure(r chunk.Range) error
	Append(r chunk.Range, rec location.Record) error
	Lock() (func() error, error)
}

// Planner decides where a run without an explicit start resumes.
type Planner interface {
	Plan() (resume.Position, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// RunRecorder keeps an external record of runs. Failures are logged, never fatal.
type RunRecorder interface {
	StartRun(ctx context.Context, runID uuid.UUID, typ location.Type, startedAt time.Time) error
	FinishRun(ctx context.Context, summary Summary, runErr error) error
}
