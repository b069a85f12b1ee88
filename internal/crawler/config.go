package crawler

import (
	"fmt"

	"github.com/JakeFAU/location-crawler/internal/location"
)

// DefaultChunkSize is the number of indices per chunk file.
const DefaultChunkSize = 100

// DefaultMaxConsecutiveAbsent stops an open-ended scan with no filter.
const DefaultMaxConsecutiveAbsent = 1000

// Config holds the settings for one crawl run.
type Config struct {
	Type      location.Type
	ChunkSize int
	// StartIndex, when set, bypasses the planner.
	StartIndex *int
	// EndIndex is exclusive.
	EndIndex *int
	// MaxConsecutiveAbsent ends an unbounded, unfiltered scan after this many
	// absent indices in a row. Zero disables it.
	MaxConsecutiveAbsent int
	// Lock takes the chunk store's advisory lock for the run.
	Lock bool
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if _, err := location.ParseType(string(c.Type)); err != nil {
		return err
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be > 0")
	}
	if c.StartIndex != nil && *c.StartIndex < 0 {
		return fmt.Errorf("start index must be >= 0")
	}
	if c.EndIndex != nil && *c.EndIndex < 0 {
		return fmt.Errorf("end index must be >= 0")
	}
	if c.StartIndex != nil && c.EndIndex != nil && *c.EndIndex < *c.StartIndex {
		return fmt.Errorf("end index %d is before start index %d", *c.EndIndex, *c.StartIndex)
	}
	if c.MaxConsecutiveAbsent < 0 {
		return fmt.Errorf("max consecutive absent must be >= 0")
	}
	return nil
}
