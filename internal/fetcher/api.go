package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/location"
)

type searchPayload struct {
	Location *searchLocation `json:"location"`
}

type searchLocation struct {
	ShortDisplayName string `json:"shortDisplayName"`
	DisplayName      string `json:"displayName"`
	LocationType     string `json:"locationType"`
	ID               any    `json:"id"`
}

// APIFetcher queries the structured search endpoint.
type APIFetcher struct {
	client Getter
	urls   URLBuilder
	logger *zap.Logger
}

// NewAPI builds an APIFetcher.
func NewAPI(client Getter, urls URLBuilder, logger *zap.Logger) *APIFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIFetcher{client: client, urls: urls, logger: logger.Named("api")}
}

// Fetch implements Fetcher.
func (f *APIFetcher) Fetch(ctx context.Context, id location.Identifier) (location.Record, bool, error) {
	apiURL := f.urls.APIURL(id)
	resp, found, err := get(ctx, f.client, id, apiURL)
	if err != nil || !found {
		return location.Record{}, false, err
	}

	malformed := func(cause error) error {
		return &Error{Identifier: id.String(), URL: apiURL, StatusCode: resp.StatusCode, Kind: ErrMalformedResponse, Err: cause}
	}

	var payload searchPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return location.Record{}, false, malformed(fmt.Errorf("decode json: %w", err))
	}
	loc := payload.Location
	if loc == nil {
		return location.Record{}, false, malformed(fmt.Errorf("missing location object"))
	}
	if loc.ShortDisplayName == "" || loc.DisplayName == "" {
		return location.Record{}, false, malformed(fmt.Errorf("missing display names"))
	}
	typ, err := location.ParseType(loc.LocationType)
	if err != nil {
		return location.Record{}, false, malformed(err)
	}
	index, err := cast.ToIntE(loc.ID)
	if err != nil {
		return location.Record{}, false, malformed(fmt.Errorf("location id: %w", err))
	}
	if typ != id.Type || index != id.Index {
		return location.Record{}, false, malformed(fmt.Errorf("payload describes %s", location.NewIdentifier(typ, index)))
	}

	area, err := AreaFromHeading(loc.DisplayName, loc.ShortDisplayName)
	if err != nil {
		return location.Record{}, false, &Error{Identifier: id.String(), URL: apiURL, StatusCode: resp.StatusCode, Kind: ErrUnparseableHeading, Err: err}
	}

	return location.Record{
		Identifier:   id.String(),
		Name:         loc.ShortDisplayName,
		Area:         area,
		Type:         typ,
		Index:        index,
		CanonicalURL: f.urls.ScrapeURL(id),
		APIURL:       apiURL,
	}, true, nil
}
