// Package fetcher turns one location identifier into a Record by querying the
// listing site, either by scraping its search page or by calling its JSON API.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/location-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/location-crawler/internal/location"
)

// Failure classes. Every error returned by a Fetcher wraps exactly one.
var (
	// ErrMalformedResponse means the payload lacked, or duplicated, a field
	// that must appear exactly once.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrUnparseableHeading means the long display name did not embed the
	// short name in the expected pattern.
	ErrUnparseableHeading = errors.New("unparseable heading")
	// ErrTransport covers network failures and unexpected HTTP statuses.
	ErrTransport = errors.New("transport failure")
)

// Fetcher resolves a single identifier. found is false when the site reports
// the identifier does not exist; that is not an error.
type Fetcher interface {
	Fetch(ctx context.Context, id location.Identifier) (rec location.Record, found bool, err error)
}

// Getter performs one HTTP GET.
type Getter interface {
	Get(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Mode selects the fetch strategy.
type Mode string

// Supported modes.
const (
	ModeHTML       Mode = "html"
	ModeAPI        Mode = "api"
	ModeCrossCheck Mode = "crosscheck"
)

// ParseMode validates a configured mode.
func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case ModeHTML, ModeAPI, ModeCrossCheck:
		return m, nil
	default:
		return "", fmt.Errorf("unknown fetch mode %q", raw)
	}
}

// Options configures New.
type Options struct {
	Mode          Mode
	URLs          URLBuilder
	NameCacheSize int
}

// New builds the Fetcher for opts.Mode on top of client.
func New(client Getter, opts Options, logger *zap.Logger) (Fetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Mode {
	case ModeHTML, "":
		return NewHTML(client, opts.URLs, opts.NameCacheSize, logger)
	case ModeAPI:
		return NewAPI(client, opts.URLs, logger), nil
	case ModeCrossCheck:
		html, err := NewHTML(client, opts.URLs, opts.NameCacheSize, logger)
		if err != nil {
			return nil, err
		}
		return NewCrossCheck(NewAPI(client, opts.URLs, logger), html, logger), nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", opts.Mode)
	}
}

// Error describes a failed fetch. It unwraps to one of the failure classes and
// to the underlying cause, if any.
type Error struct {
	Identifier string
	URL        string
	StatusCode int
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s: %v", e.Identifier, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " [%s]", e.URL)
	}
	return b.String()
}

// Unwrap exposes both the failure class and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// get performs the request and classifies the status: 2xx is found, 404 is
// absent and anything else is a transport failure.
func get(ctx context.Context, client Getter, id location.Identifier, url string) (collyfetcher.Response, bool, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return collyfetcher.Response{}, false, &Error{Identifier: id.String(), URL: url, Kind: ErrTransport, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp, false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, true, nil
	default:
		return resp, false, &Error{
			Identifier: id.String(),
			URL:        url,
			StatusCode: resp.StatusCode,
			Kind:       ErrTransport,
			Err:        fmt.Errorf("unexpected status %s", http.StatusText(resp.StatusCode)),
		}
	}
}
