// Package resume derives where an interrupted crawl continues from the chunk
// files already on disk.
package resume

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/chunk"
	"github.com/JakeFAU/location-crawler/internal/location"
)

// ChunkLister is the read side of the chunk store the planner needs.
type ChunkLister interface {
	List() ([]chunk.Range, error)
	Load(r chunk.Range) ([]location.Record, error)
}

// Position is the chunk to (re)open and the first index in it still to fetch.
type Position struct {
	ChunkStart  int
	ScrapeIndex int
}

// Planner computes the next Position. It holds no state between calls.
type Planner struct {
	store  ChunkLister
	filter *location.Filter
	logger *zap.Logger
}

// New builds a Planner. filter may be nil.
func New(store ChunkLister, filter *location.Filter, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{store: store, filter: filter, logger: logger}
}

// Plan inspects the latest chunk and returns where scanning resumes.
func (p *Planner) Plan() (Position, error) {
	ranges, err := p.store.List()
	if err != nil {
		return Position{}, fmt.Errorf("list chunks: %w", err)
	}
	if len(ranges) == 0 {
		return Position{}, nil
	}
	latest := ranges[0]
	for _, r := range ranges[1:] {
		if r.Start > latest.Start {
			latest = r
		}
	}

	records, err := p.store.Load(latest)
	if err != nil {
		return Position{}, fmt.Errorf("load chunk %s: %w", latest.FileName(), err)
	}
	// Nothing scraped yet in this chunk: everything from Start is remaining.
	latestIndex := latest.Start - 1
	for _, rec := range records {
		if rec.Index > latestIndex {
			latestIndex = rec.Index
		}
	}

	remaining := p.filter.Candidates(latestIndex+1, latest.End)
	if len(remaining) > 0 {
		pos := Position{ChunkStart: latest.Start, ScrapeIndex: remaining[0]}
		p.logger.Info("resuming chunk",
			zap.String("chunk", latest.FileName()),
			zap.Int("records", len(records)),
			zap.Int("scrape_index", pos.ScrapeIndex),
		)
		return pos, nil
	}

	pos := Position{ChunkStart: latest.End, ScrapeIndex: latest.End}
	p.logger.Info("latest chunk exhausted, advancing",
		zap.String("chunk", latest.FileName()),
		zap.Int("records", len(records)),
		zap.Int("next_chunk_start", pos.ChunkStart),
	)
	return pos, nil
}
