package dispatch

import (
	"time"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
)

// Working-hours gating. Malformed windows or timezones are configuration
// errors, not runtime errors: the gate answers "closed" and a dispatch cycle
// simply declines to place calls.

// HoursOpen reports whether now falls inside the campaign's calling window.
// The window is a half-open interval [start, end) in local wall-clock time;
// windows wrapping midnight are treated as never open.
func HoursOpen(hours domain.WorkingHours, timezone string, now time.Time) bool {
	start, end, loc, ok := parseWindow(hours, timezone)
	if !ok || !end.After(start) {
		return false
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	return minute >= minuteOfDay(start) && minute < minuteOfDay(end)
}

// NextOpen computes the next window start at or after now: today's start if
// now precedes it, otherwise tomorrow's. ok is false when the window or
// timezone is malformed.
func NextOpen(hours domain.WorkingHours, timezone string, now time.Time) (time.Time, string, bool) {
	start, end, loc, ok := parseWindow(hours, timezone)
	if !ok || !end.After(start) {
		return time.Time{}, "", false
	}

	local := now.In(loc)
	opens := time.Date(local.Year(), local.Month(), local.Day(), start.Hour(), start.Minute(), 0, 0, loc)
	if !local.Before(opens) {
		opens = opens.AddDate(0, 0, 1)
	}
	return opens, opens.Weekday().String(), true
}

func parseWindow(hours domain.WorkingHours, timezone string) (start, end time.Time, loc *time.Location, ok bool) {
	start, err := time.Parse("15:04", hours.Start)
	if err != nil {
		return time.Time{}, time.Time{}, nil, false
	}
	end, err = time.Parse("15:04", hours.End)
	if err != nil {
		return time.Time{}, time.Time{}, nil, false
	}

	if timezone == "" {
		timezone = "UTC"
	}
	loc, err = time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, time.Time{}, nil, false
	}
	return start, end, loc, true
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
