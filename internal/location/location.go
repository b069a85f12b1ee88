// Package location defines the identifier space the crawler walks: location
// types, identifiers, result records and the optional known-index filter.
package location

import (
	"fmt"
	"strings"
)

// Type is the closed set of identifier families exposed by the site.
type Type string

// Supported location types.
const (
	TypeStation  Type = "STATION"
	TypeRegion   Type = "REGION"
	TypeOutcode  Type = "OUTCODE"
	TypePostcode Type = "POSTCODE"
)

// Types lists every supported type in a stable order.
func Types() []Type {
	return []Type{TypeStation, TypeRegion, TypeOutcode, TypePostcode}
}

// ParseType converts raw input (any case) into a Type.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case TypeStation, TypeRegion, TypeOutcode, TypePostcode:
		return t, nil
	default:
		return "", fmt.Errorf("unknown location type %q", raw)
	}
}

// SitemapCategory is the sitemap folder that lists identifiers of this type,
// e.g. "stations" for STATION.
func (t Type) SitemapCategory() string {
	return strings.ToLower(string(t)) + "s"
}

// Identifier names one addressable entity: a type plus a non-negative index.
type Identifier struct {
	Type  Type
	Index int
}

// NewIdentifier builds an Identifier.
func NewIdentifier(t Type, index int) Identifier {
	return Identifier{Type: t, Index: index}
}

// String renders the wire form "{TYPE}^{index}".
func (id Identifier) String() string {
	return fmt.Sprintf("%s^%d", id.Type, id.Index)
}

// Record is the normalized outcome of one successful fetch.
type Record struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Area         string `json:"area"`
	Type         Type   `json:"type"`
	Index        int    `json:"index"`
	CanonicalURL string `json:"url"`
	APIURL       string `json:"url_api"`
}
