package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// timestampLayouts are tried in order for string timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// unixMillisThreshold separates numeric timestamps in seconds from ones in
// milliseconds. 1e12 ms is September 2001; 1e12 s is far in the future.
const unixMillisThreshold = 1e12

// ParseTimestamp parses a raw JSON timestamp value into a UTC instant.
// Strings are matched against RFC 3339 and a few common variants; numbers are
// unix seconds, or milliseconds when large enough. ok is false when the value
// is present but not understood.
func ParseTimestamp(raw json.RawMessage) (*time.Time, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseTimestampString(s)
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return parseTimestampNumber(n)
	}

	return nil, false
}

func parseTimestampString(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}

func parseTimestampNumber(n float64) (*time.Time, bool) {
	if n <= 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return nil, false
	}

	var t time.Time
	if n >= unixMillisThreshold {
		t = time.UnixMilli(int64(n)).UTC()
	} else {
		sec, frac := math.Modf(n)
		t = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return &t, true
}
