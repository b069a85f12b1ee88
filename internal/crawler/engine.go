package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/chunk"
	"github.com/JakeFAU/location-crawler/internal/clock/system"
	"github.com/JakeFAU/location-crawler/internal/id/uuid"
	"github.com/JakeFAU/location-crawler/internal/location"
	"github.com/JakeFAU/location-crawler/internal/metrics"
	"github.com/JakeFAU/location-crawler/internal/resume"
)

// Deps are the collaborators an Engine drives. Filter, Clock, IDs and
// Recorder are optional.
type Deps struct {
	Fetcher  Fetcher
	Store    ChunkStore
	Planner  Planner
	Filter   *location.Filter
	Clock    Clock
	IDs      IDGenerator
	Recorder RunRecorder
}

// Engine runs one crawl at a time over a single location type.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	store    ChunkStore
	planner  Planner
	filter   *location.Filter
	clock    Clock
	ids      IDGenerator
	recorder RunRecorder
	logger   *zap.Logger
}

// New validates cfg and wires deps into an Engine.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl config: %w", err)
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if deps.Planner == nil && cfg.StartIndex == nil {
		return nil, fmt.Errorf("planner is required without an explicit start index")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		fetcher:  deps.Fetcher,
		store:    deps.Store,
		planner:  deps.Planner,
		filter:   deps.Filter,
		clock:    deps.Clock,
		ids:      deps.IDs,
		recorder: deps.Recorder,
		logger:   logger.Named("crawler").With(zap.String("type", string(cfg.Type))),
	}, nil
}

// Run scans from the planned (or explicit) position until the end bound, the
// absent-streak limit or the first failure. Records already appended stay
// durable whatever the outcome.
func (e *Engine) Run(ctx context.Context) (summary Summary, err error) {
	runID, err := e.ids.NewRunID()
	if err != nil {
		return Summary{}, fmt.Errorf("create run id: %w", err)
	}
	summary = Summary{RunID: runID, Type: e.cfg.Type, StartedAt: e.clock.Now()}
	logger := e.logger.With(zap.String("run_id", runID.String()))

	if e.cfg.Lock {
		unlock, lockErr := e.store.Lock()
		if lockErr != nil {
			return summary, fmt.Errorf("lock chunk store: %w", lockErr)
		}
		defer func() {
			if unlockErr := unlock(); unlockErr != nil {
				logger.Warn("release chunk store lock", zap.Error(unlockErr))
			}
		}()
	}

	if e.recorder != nil {
		if recErr := e.recorder.StartRun(ctx, runID, e.cfg.Type, summary.StartedAt); recErr != nil {
			logger.Warn("record run start", zap.Error(recErr))
		}
	}
	defer func() {
		summary.Duration = e.clock.Now().Sub(summary.StartedAt)
		if e.recorder != nil {
			if recErr := e.recorder.FinishRun(context.WithoutCancel(ctx), summary, err); recErr != nil {
				logger.Warn("record run finish", zap.Error(recErr))
			}
		}
		if err != nil {
			logger.Error("crawl aborted", zap.Object("summary", summary), zap.Error(err))
			return
		}
		logger.Info("crawl finished", zap.Object("summary", summary))
	}()

	err = e.scan(ctx, &summary, logger)
	return summary, err
}

func (e *Engine) scan(ctx context.Context, summary *Summary, logger *zap.Logger) error {
	existing, err := e.existingRanges()
	if err != nil {
		return err
	}
	pos, err := e.initialPosition(existing)
	if err != nil {
		return err
	}
	summary.Final = pos
	end, bounded := e.endBound()
	logger.Info("crawl starting",
		zap.Int("chunk_start", pos.ChunkStart),
		zap.Int("scrape_index", pos.ScrapeIndex),
		zap.Bool("bounded", bounded),
		zap.Int("end", end),
	)

	typ := string(e.cfg.Type)
	stopOnAbsent := !bounded && e.filter == nil && e.cfg.MaxConsecutiveAbsent > 0
	absentStreak := 0
	r := e.rangeAt(pos.ChunkStart, existing)
	scrape := pos.ScrapeIndex

	for {
		if bounded && r.Start >= end {
			if summary.ChunksTouched == 0 {
				summary.StopReason = StopNothingToScan
			} else {
				summary.StopReason = StopEndReached
			}
			return nil
		}

		if err := e.store.Ensure(r); err != nil {
			summary.StopReason = StopStoreFailed
			return fmt.Errorf("open chunk %s: %w", r.FileName(), err)
		}
		summary.ChunksTouched++
		chunkLog := logger.With(zap.String("chunk", r.FileName()))
		chunkLog.Info("chunk active", zap.Int("scrape_index", scrape), zap.Int("size", r.Len()))

		limit := r.End
		if bounded && end < limit {
			limit = end
		}
		for _, idx := range e.filter.Candidates(scrape, limit) {
			if err := ctx.Err(); err != nil {
				summary.StopReason = StopCanceled
				return err
			}
			metrics.SetScrapeIndex(typ, idx)
			id := location.NewIdentifier(e.cfg.Type, idx)

			started := e.clock.Now()
			rec, found, fetchErr := e.fetcher.Fetch(ctx, id)
			elapsed := e.clock.Now().Sub(started)
			summary.Fetched++

			if fetchErr != nil {
				outcome := metrics.OutcomeFailed
				summary.StopReason = StopFetchFailed
				if errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, context.DeadlineExceeded) {
					outcome = metrics.OutcomeCanceled
					summary.StopReason = StopCanceled
				}
				metrics.ObserveFetch(typ, outcome, elapsed)
				summary.Final = resume.Position{ChunkStart: r.Start, ScrapeIndex: idx}
				return fmt.Errorf("crawl %s: %w", id, fetchErr)
			}

			if !found {
				metrics.ObserveFetch(typ, metrics.OutcomeAbsent, elapsed)
				summary.Absent++
				absentStreak++
				summary.Final = resume.Position{ChunkStart: r.Start, ScrapeIndex: idx + 1}
				if stopOnAbsent && absentStreak >= e.cfg.MaxConsecutiveAbsent {
					chunkLog.Info("absent streak limit reached",
						zap.Int("streak", absentStreak),
						zap.String("identifier", id.String()),
					)
					summary.StopReason = StopAbsentStreak
					return nil
				}
				continue
			}

			metrics.ObserveFetch(typ, metrics.OutcomeFound, elapsed)
			if err := e.store.Append(r, rec); err != nil {
				summary.StopReason = StopStoreFailed
				summary.Final = resume.Position{ChunkStart: r.Start, ScrapeIndex: idx}
				return fmt.Errorf("append %s: %w", id, err)
			}
			metrics.ObserveRecordWritten(typ)
			summary.Written++
			absentStreak = 0
			summary.Final = resume.Position{ChunkStart: r.Start, ScrapeIndex: idx + 1}
			chunkLog.Debug("record written", zap.String("identifier", id.String()), zap.String("name", rec.Name))
		}

		if limit < r.End {
			// The explicit end cut this chunk short; it is not complete.
			summary.Final = resume.Position{ChunkStart: r.Start, ScrapeIndex: limit}
			summary.StopReason = StopEndReached
			return nil
		}

		metrics.ObserveChunkCompleted(typ)
		chunkLog.Info("chunk complete")
		next := r.End
		summary.Final = resume.Position{ChunkStart: next, ScrapeIndex: next}
		r = e.rangeAt(next, existing)
		scrape = next
	}
}

// initialPosition honours an explicit start and otherwise asks the planner.
// An explicit start inside an existing chunk file resumes that file; else
// its chunk is aligned to the grid, moved past any file ending before start.
func (e *Engine) initialPosition(existing map[int]chunk.Range) (resume.Position, error) {
	if e.cfg.StartIndex != nil {
		start := *e.cfg.StartIndex
		chunkStart := start - start%e.cfg.ChunkSize
		for _, r := range existing {
			if r.Contains(start) {
				return resume.Position{ChunkStart: r.Start, ScrapeIndex: start}, nil
			}
			if r.End > chunkStart && r.End <= start {
				chunkStart = r.End
			}
		}
		return resume.Position{ChunkStart: chunkStart, ScrapeIndex: start}, nil
	}
	pos, err := e.planner.Plan()
	if err != nil {
		return resume.Position{}, fmt.Errorf("plan resume position: %w", err)
	}
	return pos, nil
}

// endBound returns the exclusive end of the scan. Without an explicit end the
// filter's largest index bounds it; with neither the scan is open-ended.
func (e *Engine) endBound() (int, bool) {
	end, bounded := 0, false
	if e.cfg.EndIndex != nil {
		end, bounded = *e.cfg.EndIndex, true
	}
	if e.filter != nil {
		top, ok := e.filter.Max()
		if !ok {
			return 0, true
		}
		if !bounded || top+1 < end {
			end, bounded = top+1, true
		}
	}
	return end, bounded
}

func (e *Engine) existingRanges() (map[int]chunk.Range, error) {
	ranges, err := e.store.List()
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	out := make(map[int]chunk.Range, len(ranges))
	for _, r := range ranges {
		out[r.Start] = r
	}
	return out, nil
}

// rangeAt reuses the bounds of a chunk file already starting at start, which
// may have been written with a different chunk size. A new range ends on the
// chunk grid, or earlier where the next existing file begins.
func (e *Engine) rangeAt(start int, existing map[int]chunk.Range) chunk.Range {
	if r, ok := existing[start]; ok {
		return r
	}
	r := chunk.Range{Start: start, End: start - start%e.cfg.ChunkSize + e.cfg.ChunkSize}
	for next := range existing {
		if next > start && next < r.End {
			r.End = next
		}
	}
	return r
}
