package cap

import (
	"strings"
	"time"
)

// isoLayouts covers the ISO 8601 shapes observed in CAP feeds, most common first.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// feedLayouts are RSS/Atom style timestamps seen in feed expiry hints.
var feedLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 -0700",
	time.RFC1123,
}

// ParseTime parses a CAP date/time. ISO 8601 is tried first, then the
// RFC 1123 forms used by RSS. Timestamps without a zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range feedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t the way CAP expects: seconds precision with a numeric offset.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}
