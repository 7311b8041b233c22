package availability

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidWorkingHours = errors.New("invalid working hours")
	ErrInvalidBusyInterval = errors.New("invalid busy interval")
)

// Interval is a half-open span [Start, End) within one day.
type Interval struct {
	Start Clock
	End   Clock
}

// Overlaps uses the strict test a0 < b1 && a1 > b0, so touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && i.End > o.Start
}

func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}

// Window is the open span of a business day.
type Window = Interval

// DefaultWindow applies to weekdays with no configured hours.
var DefaultWindow = Window{Start: 9 * 60, End: 19 * 60}

// WorkingHours is one weekday's configuration.
type WorkingHours struct {
	DayOfWeek int   `json:"day_of_week"`
	Start     Clock `json:"start_time"`
	End       Clock `json:"end_time"`
	Closed    bool  `json:"is_closed"`
}

func (w WorkingHours) Validate() error {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidWorkingHours, w.DayOfWeek)
	}
	if !w.Closed && w.Start >= w.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWorkingHours, w.Start, w.End)
	}
	return nil
}

// BusyInterval is an occupied span. A zero Date means "the date being queried".
type BusyInterval struct {
	Date            time.Time `json:"date,omitempty"`
	Start           Clock     `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (b BusyInterval) End() Clock {
	return b.Start.Add(b.DurationMinutes)
}

func (b BusyInterval) Interval() Interval {
	return Interval{Start: b.Start, End: b.End()}
}

func overlapsAny(slot Interval, busy []BusyInterval) bool {
	for _, b := range busy {
		if slot.Overlaps(b.Interval()) {
			return true
		}
	}
	return false
}
