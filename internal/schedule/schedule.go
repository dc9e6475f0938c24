// Package schedule computes task due times from schedule definitions.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Schedule type constants.
const (
	TypeCron     = "cron"
	TypeInterval = "interval"
	TypeOnce     = "once"
)

// cronParser accepts standard 5-field expressions (minute .. day-of-week).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// ValidType reports whether typ is a known schedule type.
func ValidType(typ string) bool {
	switch typ {
	case TypeCron, TypeInterval, TypeOnce:
		return true
	}
	return false
}

// NextRun computes the next due time for a schedule, evaluated at now.
//
// cron fires are computed in the process's local timezone; an expression that
// parses but can never fire yields nil. Interval due times
// are relative to now, so an overrunning execution drifts rather than catching
// up. A once schedule yields its timestamp only while it is still in the
// future; afterwards it yields nil, meaning the task never runs again.
func NextRun(typ, value string, now time.Time) (*time.Time, error) {
	switch typ {
	case TypeCron:
		sched, err := cronParser.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", value, err)
		}
		next := sched.Next(now.In(time.Local))
		if next.IsZero() {
			// Parseable but unsatisfiable (e.g. Feb 30): never fires.
			return nil, nil
		}
		return &next, nil

	case TypeInterval:
		ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid interval %q: want positive milliseconds", value)
		}
		next := now.Add(time.Duration(ms) * time.Millisecond)
		return &next, nil

	case TypeOnce:
		at, err := parseTimestamp(value)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
		}
		if !at.After(now) {
			return nil, nil
		}
		return &at, nil
	}
	return nil, fmt.Errorf("unknown schedule type %q", typ)
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	// Accept local timestamps without an offset.
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized format")
}
