package source

import (
	"regexp"
	"time"
)

var metadataDateRe = regexp.MustCompile(`\d{4}/\d{1,2}/\d{1,2}`)

// publishedLayouts are tried in order. RFC3339 covers backends that send a
// zone suffix; the first two match what SearXNG engines usually emit.
var publishedLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// DateFromMetadata pulls the first yyyy/m/d date out of a free-text
// metadata field and returns it as yyyy-mm-dd, or "" when none is found.
func DateFromMetadata(metadata string) string {
	if metadata == "" {
		return ""
	}
	m := metadataDateRe.FindString(metadata)
	if m == "" {
		return ""
	}
	t, err := time.Parse("2006/1/2", m)
	if err != nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

// ParsePublished parses a published date string. Unparsable or empty input
// yields nil.
func ParsePublished(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
