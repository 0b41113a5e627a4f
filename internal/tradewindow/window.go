// Package tradewindow describes when an order can be traded and when it expires.
// All renderings use UTC so announcements do not depend on the host timezone.
package tradewindow

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// State of an order's validity window at processing time
type State int

const (
	StateActive State = iota
	StateNotYetActive
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateNotYetActive:
		return "not_yet_active"
	default:
		return "unknown"
	}
}

// StateAt returns the window state of an order valid from validFrom
func StateAt(validFrom, now time.Time) State {
	if validFrom.After(now) {
		return StateNotYetActive
	}
	return StateActive
}

// Describe returns an optional "Tradable" line followed by the "Expires" line
func Describe(validFrom, validUntil, now time.Time) string {
	lines := make([]string, 0, 2)

	if StateAt(validFrom, now) == StateNotYetActive {
		lines = append(lines, "Tradable: "+Calendar(validFrom, now)+", "+Relative(validFrom, now))
	}
	lines = append(lines, "Expires: "+Calendar(validUntil, now)+", "+Relative(validUntil, now))

	return strings.Join(lines, "\n")
}

// Calendar renders t relative to the calendar day of now,
// e.g. "Today at 14:05 UTC", "Last Monday at 09:00 UTC" or "03/21/2027 10:00 UTC"
func Calendar(t, now time.Time) string {
	t = t.UTC()
	now = now.UTC()

	clock := t.Format("15:04") + " UTC"

	switch days := dayDiff(now, t); {
	case days == 0:
		return "Today at " + clock
	case days == 1:
		return "Tomorrow at " + clock
	case days == -1:
		return "Yesterday at " + clock
	case days > 1 && days < 7:
		return t.Weekday().String() + " at " + clock
	case days < -1 && days > -7:
		return "Last " + t.Weekday().String() + " at " + clock
	default:
		return t.Format("01/02/2006 15:04") + " UTC"
	}
}

// Relative renders t as "3 hours from now", "2 days ago" or "now"
func Relative(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// dayDiff returns the number of UTC calendar days from one time to another
func dayDiff(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay).Hours() / 24)
}
