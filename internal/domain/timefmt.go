package domain

import (
	"strings"
	"time"
)

// Layouts accepted for post dates in front matter, feeds and Micropub listings.
var postDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// ParsePostDate parses value with the first matching layout. Unparseable input yields the
// zero time.
func ParsePostDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
