package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/hash/sha256"
	"github.com/JakeFAU/location-crawler/internal/location"
)

const (
	nameSelector    = "input.input--full"
	headingSelector = "h1.searchTitle-heading"

	defaultNameCacheSize = 256
)

type pageFields struct {
	name    string
	heading string
}

// HTMLFetcher scrapes the search results page.
type HTMLFetcher struct {
	client Getter
	urls   URLBuilder
	pages  *lru.Cache[string, pageFields]
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewHTML builds an HTMLFetcher. cacheSize bounds the number of parsed pages
// remembered by content digest; zero selects a default.
func NewHTML(client Getter, urls URLBuilder, cacheSize int, logger *zap.Logger) (*HTMLFetcher, error) {
	if cacheSize <= 0 {
		cacheSize = defaultNameCacheSize
	}
	pages, err := lru.New[string, pageFields](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLFetcher{
		client: client,
		urls:   urls,
		pages:  pages,
		hasher: sha256.New(),
		logger: logger.Named("html"),
	}, nil
}

// Fetch implements Fetcher.
func (f *HTMLFetcher) Fetch(ctx context.Context, id location.Identifier) (location.Record, bool, error) {
	scrapeURL := f.urls.ScrapeURL(id)
	resp, found, err := get(ctx, f.client, id, scrapeURL)
	if err != nil || !found {
		return location.Record{}, false, err
	}

	fields, err := f.extract(resp.Body)
	if err != nil {
		return location.Record{}, false, &Error{Identifier: id.String(), URL: scrapeURL, StatusCode: resp.StatusCode, Kind: ErrMalformedResponse, Err: err}
	}
	area, err := AreaFromHeading(fields.heading, fields.name)
	if err != nil {
		return location.Record{}, false, &Error{Identifier: id.String(), URL: scrapeURL, StatusCode: resp.StatusCode, Kind: ErrUnparseableHeading, Err: err}
	}

	f.logger.Debug("parsed search page",
		zap.String("identifier", id.String()),
		zap.String("name", fields.name),
		zap.String("area", area),
	)
	return location.Record{
		Identifier:   id.String(),
		Name:         fields.name,
		Area:         area,
		Type:         id.Type,
		Index:        id.Index,
		CanonicalURL: scrapeURL,
		APIURL:       f.urls.APIURL(id),
	}, true, nil
}

func (f *HTMLFetcher) extract(body []byte) (pageFields, error) {
	key := f.hasher.Hash(body)
	if cached, ok := f.pages.Get(key); ok {
		return cached, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageFields{}, fmt.Errorf("parse html: %w", err)
	}

	inputs := doc.Find(nameSelector)
	if inputs.Length() != 1 {
		return pageFields{}, fmt.Errorf("expected one %s, found %d", nameSelector, inputs.Length())
	}
	name, ok := inputs.Attr("value")
	if !ok || strings.TrimSpace(name) == "" {
		return pageFields{}, fmt.Errorf("%s has no value", nameSelector)
	}

	headings := doc.Find(headingSelector)
	if headings.Length() != 1 {
		return pageFields{}, fmt.Errorf("expected one %s, found %d", headingSelector, headings.Length())
	}

	fields := pageFields{name: name, heading: strings.TrimSpace(headings.Text())}
	f.pages.Add(key, fields)
	return fields, nil
}
