package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/location"
)

// CrossCheckFetcher queries two strategies and fails unless they agree. The
// primary's record is returned.
type CrossCheckFetcher struct {
	primary   Fetcher
	secondary Fetcher
	logger    *zap.Logger
}

// NewCrossCheck builds a CrossCheckFetcher.
func NewCrossCheck(primary, secondary Fetcher, logger *zap.Logger) *CrossCheckFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossCheckFetcher{primary: primary, secondary: secondary, logger: logger.Named("crosscheck")}
}

// Fetch implements Fetcher.
func (f *CrossCheckFetcher) Fetch(ctx context.Context, id location.Identifier) (location.Record, bool, error) {
	rec, found, err := f.primary.Fetch(ctx, id)
	if err != nil {
		return location.Record{}, false, err
	}
	other, otherFound, err := f.secondary.Fetch(ctx, id)
	if err != nil {
		return location.Record{}, false, err
	}

	var mismatch error
	switch {
	case found != otherFound:
		mismatch = fmt.Errorf("presence disagrees: %t vs %t", found, otherFound)
	case found && rec.Name != other.Name:
		mismatch = fmt.Errorf("name disagrees: %q vs %q", rec.Name, other.Name)
	case found && rec.Area != other.Area:
		mismatch = fmt.Errorf("area disagrees: %q vs %q", rec.Area, other.Area)
	}
	if mismatch != nil {
		f.logger.Warn("strategies disagree", zap.String("identifier", id.String()), zap.Error(mismatch))
		return location.Record{}, false, &Error{Identifier: id.String(), Kind: ErrMalformedResponse, Err: mismatch}
	}
	return rec, found, nil
}
