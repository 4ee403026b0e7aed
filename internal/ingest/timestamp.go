package ingest

import (
	"errors"
	"strings"
	"time"
)

var errTimestamp = errors.New("not an ISO-8601 timestamp")

// timestampLayouts are tried in order. Fractional seconds of any precision
// are accepted after the seconds field. Layouts without a zone read as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseTimestamp reads the ISO-8601 forms terminals send, including .NET
// round-trip values with seven fractional digits and no offset.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errTimestamp
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errTimestamp
}
