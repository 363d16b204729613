package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Epoch magnitude thresholds. Values at a threshold take the larger unit.
const (
	epochMillisThreshold = 1e12
	epochMicrosThreshold = 1e15
	epochNanosThreshold  = 1e18
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.UnixDate,
	time.Stamp, // syslog "Jan _2 15:04:05", year injected below
}

// resolveTimestamp picks the first non-empty of timestamp/time/@timestamp and
// parses it. Numbers are epoch values whose unit is detected by magnitude.
// Parse failures fall back to now. Output is always UTC.
func resolveTimestamp(entry map[string]any, now time.Time) time.Time {
	for _, key := range []string{"timestamp", "time", "@timestamp"} {
		v, ok := entry[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return epochToTime(t).UTC()
		case int:
			return epochToTime(float64(t)).UTC()
		case int64:
			return epochToTime(float64(t)).UTC()
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return epochToTime(f).UTC()
			}
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return epochToTime(f).UTC()
			}
			if parsed, ok := parseTimestampString(s, now); ok {
				return parsed.UTC()
			}
			return now.UTC()
		}
	}
	return now.UTC()
}

// epochToTime interprets an epoch number as s/ms/µs/ns by magnitude.
func epochToTime(v float64) time.Time {
	switch {
	case v >= epochNanosThreshold:
		return time.Unix(0, int64(v))
	case v >= epochMicrosThreshold:
		return time.Unix(0, int64(v)*int64(time.Microsecond))
	case v >= epochMillisThreshold:
		return time.Unix(0, int64(v)*int64(time.Millisecond))
	default:
		sec := int64(v)
		frac := v - float64(sec)
		return time.Unix(sec, int64(frac*float64(time.Second)))
	}
}

func parseTimestampString(s string, now time.Time) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// Syslog stamps carry no year; assume the current one, stepping back
		// around new year when that lands in the future.
		if parsed.Year() == 0 {
			parsed = parsed.AddDate(now.Year(), 0, 0)
			if parsed.After(now.Add(24 * time.Hour)) {
				parsed = parsed.AddDate(-1, 0, 0)
			}
		}
		return parsed, true
	}
	return time.Time{}, false
}

// clampFuture limits ts to now + maxDrift. Returns the clamped timestamp and
// whether clamping happened.
func clampFuture(ts, now time.Time, maxDrift time.Duration) (time.Time, bool) {
	if ts.After(now.Add(maxDrift)) {
		return now, true
	}
	return ts, false
}
