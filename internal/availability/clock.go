package availability

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidClock = errors.New("invalid wall-clock time")
	ErrInvalidDate  = errors.New("invalid date")
)

const dateLayout = "2006-01-02"

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock accepts "HH:MM" and the "HH:MM:SS[.ffffff]" form Postgres returns for TIME columns.
func ParseClock(s string) (Clock, error) {
	if len(s) < 5 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	layout := "15:04"
	if len(s) > 5 {
		// Parse also takes a fractional second after the seconds field.
		layout = "15:04:05"
	}
	tt, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(tt.Hour()*60 + tt.Minute()), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the wall-clock part of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD form. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// Weekday resolves a date to 0=Sunday..6=Saturday.
func Weekday(date time.Time) int {
	return int(date.Weekday())
}

// SameDate reports whether a and b fall on the same calendar day, ignoring location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
