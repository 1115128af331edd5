package protocol

import (
	"fmt"
	"time"
)

// TimestampLayout is the wire-exact timestamp format: six-digit fractional
// seconds, a literal trailing Z, always in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in the wire-exact timestamp form, converting to
// UTC first regardless of t's original location.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses the wire-exact timestamp form, returning a UTC time.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("protocol: invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
