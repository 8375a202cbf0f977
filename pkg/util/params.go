package util

import (
	"strconv"
	"strings"
	"time"
)

// unixMillisFloor separates unix seconds from unix milliseconds. Second
// values above it are past the year 33658.
const unixMillisFloor = 1e12

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// ParseTime accepts RFC3339 (with or without fraction), a bare date, unix
// seconds or unix milliseconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case n <= 0:
			return time.Time{}, false
		case n >= unixMillisFloor:
			return time.UnixMilli(n).UTC(), true
		default:
			return time.Unix(n, 0).UTC(), true
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ResolveRange turns optional query bounds into a closed window. A missing
// or unparsable "to" means now and a missing "from" means span before "to".
// Swapped bounds are reordered.
func ResolveRange(from, to string, now time.Time, span time.Duration) (time.Time, time.Time) {
	end, ok := ParseTime(to)
	if !ok {
		end = now
	}
	start, ok := ParseTime(from)
	if !ok {
		start = end.Add(-span)
	}
	if end.Before(start) {
		return end, start
	}
	return start, end
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
