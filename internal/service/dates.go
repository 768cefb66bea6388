package service

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate reads an ISO date. Full ISO datetimes are accepted and truncated
// to their calendar date. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if t, err := time.Parse(DateLayout, s); err == nil {
		return &t, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			d := startOfDay(t)
			return &d, nil
		}
	}
	return nil, invalid("Invalid date %q: expected YYYY-MM-DD", s)
}

// ParseDateRange parses both bounds and rejects a start after the end.
func ParseDateRange(start, end string) (*time.Time, *time.Time, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, invalid("start_date must not be after end_date")
	}
	return from, to, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
