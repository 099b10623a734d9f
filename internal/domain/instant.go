package domain

import (
	"encoding/json"
	"time"
)

// instantLayouts are the textual timestamp forms accepted at the system
// boundary, tried in order.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseInstant normalizes a duck-typed timestamp into a UTC time.Time.
// It accepts RFC3339(-ish) strings, time.Time values, and unix
// seconds/milliseconds numbers. Anything absent or unparseable yields the
// zero time, which sorts as the oldest possible instant.
func ParseInstant(v any) time.Time {
	switch t := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t == nil {
			return time.Time{}
		}
		return t.UTC()
	case string:
		for _, layout := range instantLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
		return time.Time{}
	case float64:
		return unixInstant(int64(t))
	case int64:
		return unixInstant(t)
	case int:
		return unixInstant(int64(t))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return unixInstant(i)
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}

// unixInstant interprets n as unix milliseconds when it is too large to be a
// plausible seconds value.
func unixInstant(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
