// Package chunk persists crawl results as fixed-size index ranges, one JSON
// file per range, under <root>/<TYPE>/.
package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrMalformedChunkName reports a file in a chunk directory whose name does
// not encode a range.
var ErrMalformedChunkName = errors.New("malformed chunk name")

var chunkNamePattern = regexp.MustCompile(`^(\d{8,})_(\d{8,})\.json$`)

// Range is the half-open index interval [Start, End) covered by one file.
type Range struct {
	Start int
	End   int
}

// NewRange returns the range of size starting at start.
func NewRange(start, size int) Range {
	return Range{Start: start, End: start + size}
}

// Contains reports whether index lies in the range.
func (r Range) Contains(index int) bool {
	return index >= r.Start && index < r.End
}

// Len is the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// FileName encodes the closed range as "<start>_<end-1>.json", zero-padded.
func (r Range) FileName() string {
	return fmt.Sprintf("%08d_%08d.json", r.Start, r.End-1)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// ParseFileName decodes a name produced by FileName.
func ParseFileName(name string) (Range, error) {
	m := chunkNamePattern.FindStringSubmatch(name)
	if m == nil {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformedChunkName, name)
	}
	first, err := strconv.Atoi(m[1])
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %v", ErrMalformedChunkName, name, err)
	}
	last, err := strconv.Atoi(m[2])
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %v", ErrMalformedChunkName, name, err)
	}
	if last < first {
		return Range{}, fmt.Errorf("%w: %q: end before start", ErrMalformedChunkName, name)
	}
	return Range{Start: first, End: last + 1}, nil
}
