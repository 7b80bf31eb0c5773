package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeWindow represents a resolved absolute time range in UTC
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Duration returns the window length
func (w TimeWindow) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Contains reports whether the unix timestamp ts falls inside the window
// (inclusive on both ends)
func (w TimeWindow) Contains(ts int64) bool {
	t := time.Unix(ts, 0).UTC()
	return !t.Before(w.From) && !t.After(w.To)
}

// ParseTimeBound parses a time bound that is either a relative duration
// ("1h", "6h", "24h", "7d") or an absolute RFC 3339 instant. Relative bounds
// are interpreted as "that long before now".
func ParseTimeBound(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time bound")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := parseExtendedDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time bound %q: expected a duration like 24h or 7d, or an RFC 3339 instant", s)
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("invalid time bound %q: duration must be positive", s)
	}
	return now.Add(-d).UTC(), nil
}

// parseExtendedDuration parses Go durations plus a day suffix ("7d")
func parseExtendedDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, err
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}
	return time.ParseDuration(s)
}

// ResolveWindow normalizes an ageFrom/ageTo pair, each relative or absolute,
// into an absolute window. An empty ageTo means now.
func ResolveWindow(ageFrom, ageTo string, now time.Time) (TimeWindow, error) {
	from, err := ParseTimeBound(ageFrom, now)
	if err != nil {
		return TimeWindow{}, err
	}
	to := now.UTC()
	if strings.TrimSpace(ageTo) != "" {
		to, err = ParseTimeBound(ageTo, now)
		if err != nil {
			return TimeWindow{}, err
		}
	}
	if !from.Before(to) {
		return TimeWindow{}, fmt.Errorf("time window start %s is not before end %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return TimeWindow{From: from, To: to}, nil
}
