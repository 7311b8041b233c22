package availability

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidStep     = errors.New("invalid step")
	ErrForeignInterval = errors.New("busy interval belongs to another date")
)

// DefaultStepMinutes is the probing grid used when Engine.Step is unset.
const DefaultStepMinutes = 30

// Reason explains the content of a Result, mostly so an empty list can be told apart.
type Reason string

const (
	ReasonAvailable      Reason = "available"
	ReasonClosed         Reason = "closed"
	ReasonFullyBooked    Reason = "fully_booked"
	ReasonServiceTooLong Reason = "service_too_long"
	ReasonDayElapsed     Reason = "day_elapsed"
)

type Result struct {
	Date    string   `json:"date"`
	Weekday int      `json:"weekday"`
	Open    string   `json:"open,omitempty"`
	Close   string   `json:"close,omitempty"`
	Slots   []string `json:"slots"`
	Reason  Reason   `json:"reason"`
}

// Engine generates bookable start times.
//
// Candidates are tried only on a grid of Step minutes starting at the opening time. A start
// between grid points is never offered even if the service would fit there; this grid alignment
// is the scheduling policy, and changing it changes what clients see.
type Engine struct {
	Step    int
	Default Window
}

func (e Engine) step() int {
	if e.Step == 0 {
		return DefaultStepMinutes
	}
	return e.Step
}

func (e Engine) defaultWindow() Window {
	if e.Default == (Window{}) {
		return DefaultWindow
	}
	return e.Default
}

// Generate returns every grid-aligned start on date where a booking of durationMinutes fits
// inside working hours and overlaps none of busy.
func (e Engine) Generate(date time.Time, durationMinutes int, week []WorkingHours, busy []BusyInterval) (Result, error) {
	return e.generate(date, durationMinutes, week, busy, -1)
}

// GenerateAfter is Generate with candidates starting before notBefore dropped.
func (e Engine) GenerateAfter(date time.Time, durationMinutes int, week []WorkingHours, busy []BusyInterval, notBefore Clock) (Result, error) {
	return e.generate(date, durationMinutes, week, busy, notBefore)
}

func (e Engine) generate(date time.Time, durationMinutes int, week []WorkingHours, busy []BusyInterval, notBefore Clock) (Result, error) {
	if durationMinutes <= 0 {
		return Result{}, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, durationMinutes)
	}
	step := e.step()
	if step <= 0 {
		return Result{}, fmt.Errorf("%w: %d minutes", ErrInvalidStep, step)
	}
	if date.IsZero() {
		return Result{}, fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	for _, b := range busy {
		if b.DurationMinutes <= 0 {
			return Result{}, fmt.Errorf("%w: %s lasting %d minutes", ErrInvalidBusyInterval, b.Start, b.DurationMinutes)
		}
		if !b.Date.IsZero() && !SameDate(b.Date, date) {
			return Result{}, fmt.Errorf("%w: %s on %s", ErrForeignInterval, b.Start, FormatDate(b.Date))
		}
	}

	weekday := Weekday(date)
	res := Result{Date: FormatDate(date), Weekday: weekday, Slots: []string{}}

	window := e.defaultWindow()
	if cfg, ok := lookup(week, weekday); ok {
		if err := cfg.Validate(); err != nil {
			return Result{}, err
		}
		if cfg.Closed {
			res.Reason = ReasonClosed
			return res, nil
		}
		window = Window{Start: cfg.Start, End: cfg.End}
	}
	res.Open, res.Close = window.Start.String(), window.End.String()

	if durationMinutes > window.Minutes() {
		res.Reason = ReasonServiceTooLong
		return res, nil
	}

	elapsed, tried := 0, 0
	for current := window.Start; ; current = current.Add(step) {
		slot := Interval{Start: current, End: current.Add(durationMinutes)}
		if slot.End > window.End {
			break
		}
		if current < notBefore {
			elapsed++
			continue
		}
		tried++
		if !overlapsAny(slot, busy) {
			res.Slots = append(res.Slots, current.String())
		}
	}

	switch {
	case len(res.Slots) > 0:
		res.Reason = ReasonAvailable
	case tried == 0 && elapsed > 0:
		res.Reason = ReasonDayElapsed
	default:
		res.Reason = ReasonFullyBooked
	}
	return res, nil
}

// GenerateSlots is the bare form of Engine.Generate with the default window.
func GenerateSlots(date time.Time, durationMinutes int, week []WorkingHours, busy []BusyInterval, stepMinutes int) ([]string, error) {
	res, err := Engine{Step: stepMinutes}.Generate(date, durationMinutes, week, busy)
	if err != nil {
		return nil, err
	}
	return res.Slots, nil
}

// Offers reports whether start is one of the slots in res.
func (r Result) Offers(start string) bool {
	for _, s := range r.Slots {
		if s == start {
			return true
		}
	}
	return false
}

// lookup returns the first entry for weekday.
func lookup(week []WorkingHours, weekday int) (WorkingHours, bool) {
	for _, w := range week {
		if w.DayOfWeek == weekday {
			return w, true
		}
	}
	return WorkingHours{}, false
}
