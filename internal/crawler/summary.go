package crawler

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/location-crawler/internal/location"
	"github.com/JakeFAU/location-crawler/internal/resume"
)

// Stop reasons reported in Summary.
const (
	StopEndReached    = "end_reached"
	StopAbsentStreak  = "absent_streak"
	StopFetchFailed   = "fetch_failed"
	StopStoreFailed   = "store_failed"
	StopCanceled      = "canceled"
	StopNothingToScan = "nothing_to_scan"
)

// Summary describes what a run did.
type Summary struct {
	RunID         uuid.UUID
	Type          location.Type
	StartedAt     time.Time
	Duration      time.Duration
	ChunksTouched int
	Fetched       int
	Written       int
	Absent        int
	// Final is where the next run would resume.
	Final      resume.Position
	StopReason string
}

// MarshalLogObject lets the summary be logged with zap.Object.
func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("run_id", s.RunID.String())
	enc.AddString("type", string(s.Type))
	enc.AddDuration("duration", s.Duration)
	enc.AddInt("chunks", s.ChunksTouched)
	enc.AddInt("fetched", s.Fetched)
	enc.AddInt("written", s.Written)
	enc.AddInt("absent", s.Absent)
	enc.AddInt("chunk_start", s.Final.ChunkStart)
	enc.AddInt("scrape_index", s.Final.ScrapeIndex)
	enc.AddString("stop_reason", s.StopReason)
	return nil
}
