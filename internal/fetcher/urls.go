package fetcher

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/location-crawler/internal/location"
)

// DefaultBaseURL is the public site root.
const DefaultBaseURL = "https://www.rightmove.co.uk"

// Channel is the listing channel that scopes a search.
type Channel string

// Supported channels.
const (
	ChannelRent Channel = "property-to-rent"
	ChannelBuy  Channel = "property-for-sale"
)

// URLBuilder renders the search page and API URLs for an identifier.
type URLBuilder struct {
	BaseURL string
	Channel Channel
	// Query holds extra parameters; snake_case keys are sent as camelCase.
	Query map[string]string
}

// DefaultQuery mirrors the parameters the site's own search form sends.
func DefaultQuery() map[string]string {
	return map[string]string{
		"sort_type": "4",
		"radius":    strconv.FormatFloat(40.0, 'f', 1, 64),
	}
}

// NewURLBuilder fills in defaults for empty fields.
func NewURLBuilder(baseURL string, channel Channel, query map[string]string) URLBuilder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if channel == "" {
		channel = ChannelRent
	}
	if query == nil {
		query = DefaultQuery()
	}
	return URLBuilder{BaseURL: strings.TrimRight(baseURL, "/"), Channel: channel, Query: query}
}

// ScrapeURL is the HTML search page for id.
func (b URLBuilder) ScrapeURL(id location.Identifier) string {
	values := b.values(id)
	return b.BaseURL + "/" + string(b.Channel) + "/find.html?" + values.Encode()
}

// APIURL is the structured search endpoint for id.
func (b URLBuilder) APIURL(id location.Identifier) string {
	values := b.values(id)
	values.Set("channel", string(b.Channel))
	return b.BaseURL + "/api/_search?" + values.Encode()
}

func (b URLBuilder) values(id location.Identifier) url.Values {
	values := url.Values{}
	values.Set("locationIdentifier", id.String())
	for k, v := range b.Query {
		values.Set(camelCase(k), v)
	}
	return values
}

var snakeSegment = regexp.MustCompile(`_([a-zA-Z])`)

func camelCase(snake string) string {
	return snakeSegment.ReplaceAllStringFunc(snake, func(m string) string {
		return strings.ToUpper(m[1:])
	})
}
