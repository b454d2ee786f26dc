package timeutil

import (
	"fmt"
	"regexp"
	"time"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ValidDate reports whether s has the shape YYYY-MM-DD.
func ValidDate(s string) bool { return dateRe.MatchString(s) }

// ValidTime reports whether s has the shape HH:MM on a 24h clock.
func ValidTime(s string) bool { return timeRe.MatchString(s) }

// MinuteOfDay converts an HH:MM clock string to minutes since midnight.
func MinuteOfDay(clock string) (int, error) {
	if !ValidTime(clock) {
		return 0, fmt.Errorf("invalid time %q", clock)
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Calendar performs all date arithmetic in one fixed IANA timezone. Day
// boundaries and weekdays are properties of the local calendar, never of UTC.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(tz string) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Calendar{loc: loc}, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

// ParseDateTime converts a YYYY-MM-DD date and HH:MM clock time to epoch
// seconds in the calendar's zone.
func (c *Calendar) ParseDateTime(date, clock string) (int64, error) {
	if !ValidDate(date) || !ValidTime(clock) {
		return 0, fmt.Errorf("invalid date or time %q %q", date, clock)
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, c.loc)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// ParseDate converts a YYYY-MM-DD date to the epoch seconds of its local
// midnight.
func (c *Calendar) ParseDate(date string) (int64, error) {
	if !ValidDate(date) {
		return 0, fmt.Errorf("invalid date %q", date)
	}
	t, err := time.ParseInLocation("2006-01-02", date, c.loc)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// Midnight truncates ts to the local midnight of its calendar day.
func (c *Calendar) Midnight(ts int64) int64 {
	t := time.Unix(ts, 0).In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc).Unix()
}

// NextDay returns the local midnight of the calendar day after ts. Stepping
// through calendar dates rather than adding 86400 seconds keeps the walk
// stable across daylight-saving transitions.
func (c *Calendar) NextDay(ts int64) int64 {
	t := time.Unix(ts, 0).In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, c.loc).Unix()
}

// Weekday returns the ISO weekday (1=Monday .. 7=Sunday) of ts's local
// calendar day.
func (c *Calendar) Weekday(ts int64) int {
	wd := int(time.Unix(ts, 0).In(c.loc).Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// FormatDateTime renders ts as a local "2006-01-02 15:04" string, for emails
// and audit payloads.
func (c *Calendar) FormatDateTime(ts int64) string {
	return time.Unix(ts, 0).In(c.loc).Format("2006-01-02 15:04")
}

// FormatTime renders the local clock time of ts.
func (c *Calendar) FormatTime(ts int64) string {
	return time.Unix(ts, 0).In(c.loc).Format("15:04")
}
