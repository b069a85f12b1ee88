package fetcher

import (
	"fmt"
	"regexp"
	"strings"
)

// AreaFromHeading extracts the area from a long display heading such as
// "Properties To Rent near Abbey Road Station, London, within 3 miles" given
// the short name "Abbey Road Station". The result would be "London".
func AreaFromHeading(heading, name string) (string, error) {
	pattern, err := regexp.Compile(
		`^(?:Properties (?:To Rent|For Sale) (?:in|near) )?` +
			regexp.QuoteMeta(name) +
			`, (.*?)(?:, within .*)?$`,
	)
	if err != nil {
		return "", fmt.Errorf("%w: compile pattern for %q: %v", ErrUnparseableHeading, name, err)
	}
	m := pattern.FindStringSubmatch(strings.TrimSpace(heading))
	if m == nil {
		return "", fmt.Errorf("%w: %q does not match name %q", ErrUnparseableHeading, heading, name)
	}
	return m[1], nil
}
