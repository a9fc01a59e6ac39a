package schema

import (
	"fmt"
	"strings"
	"time"
)

// Layouts carrying their own zone or offset.
var zonedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// Layouts interpreted in the configured location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
	"2.1.2006 15:04",
	"02.01.2006, 15:04",
	"02.01.2006",
	"2.1.2006",
	"2006-01-02",
	"Jan 2 2006 15:04",
	"Jan 02 2006",
	"Jan 2 2006",
	"2 January 2006",
}

// ParseDate parses a date or date-time string. Values without zone
// information are interpreted in loc. Layouts are tried in a fixed order so
// the result is deterministic.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.Join(strings.Fields(raw), " ")
	s = strings.TrimSuffix(strings.TrimSuffix(s, " Uhr"), " h")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", raw)
}

// HasClock reports whether raw carries a time of day, as opposed to a bare
// calendar date.
func HasClock(raw string) bool {
	return strings.Contains(raw, ":")
}
