package helpers

import (
	"fmt"
	"time"
)

// ParseSince turns a --since value into an absolute time. It accepts a
// duration relative to now ("30m", "24h"), "now", RFC3339, or a plain date.
// Empty means no lower bound.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since duration %q: must be positive", s)
		}
		return now.Add(-d), nil
	}
	t, err := parseTime(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since value %q: %w", s, err)
	}
	return t, nil
}

func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "now" {
		return now, nil
	}
	// Try RFC3339 first
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format (use a duration or RFC3339)")
}
