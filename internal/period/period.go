// Package period turns symbolic or literal time expressions into half-open
// intervals.
package period

import (
	"fmt"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Interval is the half-open window [After, Before).
type Interval struct {
	After  time.Time
	Before time.Time
}

// InvalidPeriodError reports an expression that could not be resolved.
type InvalidPeriodError struct {
	Input  string
	Reason string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q: %s (use \"today\", \"last_week\", an ISO date like \"2026-01-01\" or a range like \"2026-01-01/2026-01-20\")", e.Input, e.Reason)
}

// literal layouts tried in order; the ones without an offset are read in
// the location of now.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Resolve computes the interval for expr relative to now. An empty expr
// means today. Calendar days are taken in now's location.
func Resolve(expr string, now time.Time) (Interval, error) {
	expr = strings.TrimSpace(expr)
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.Add(day)

	switch expr {
	case "", "today":
		return Interval{After: today, Before: tomorrow}, nil
	case "yesterday":
		return Interval{After: today.Add(-day), Before: today}, nil
	case "last_3_days":
		return Interval{After: today.Add(-3 * day), Before: tomorrow}, nil
	case "last_week", "this_week":
		return Interval{After: today.Add(-7 * day), Before: tomorrow}, nil
	case "last_month", "this_month":
		return Interval{After: today.Add(-30 * day), Before: tomorrow}, nil
	}

	if strings.Contains(expr, "/") {
		parts := strings.Split(expr, "/")
		if len(parts) != 2 {
			return Interval{}, &InvalidPeriodError{Input: expr, Reason: "a range needs exactly one '/'"}
		}
		after, err := parseInstant(parts[0], loc)
		if err != nil {
			return Interval{}, &InvalidPeriodError{Input: expr, Reason: fmt.Sprintf("bad range start %q", parts[0])}
		}
		before, err := parseInstant(parts[1], loc)
		if err != nil {
			return Interval{}, &InvalidPeriodError{Input: expr, Reason: fmt.Sprintf("bad range end %q", parts[1])}
		}
		if !after.Before(before) {
			return Interval{}, &InvalidPeriodError{Input: expr, Reason: "range end must be after its start"}
		}
		return Interval{After: after, Before: before}, nil
	}

	t, err := parseInstant(expr, loc)
	if err != nil {
		return Interval{}, &InvalidPeriodError{Input: expr, Reason: "not a known period or ISO date"}
	}
	return Interval{After: t, Before: t.Add(day)}, nil
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable instant %q", s)
}
