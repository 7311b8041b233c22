package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/cache"
)

// Availability returns the bookable starts on date for a service of durationMinutes.
// Today's starts that already passed in the shop's timezone are left out, and a past date
// yields none.
func (a *App) Availability(ctx context.Context, date time.Time, durationMinutes int) (availability.Result, error) {
	week, err := a.weeklyConfig(ctx)
	if err != nil {
		return availability.Result{}, err
	}
	busy, err := a.busyIntervals(ctx, date)
	if err != nil {
		return availability.Result{}, err
	}
	res, err := a.slotsFor(date, durationMinutes, week, busy)
	if err != nil {
		return availability.Result{}, err
	}
	if a.Metrics != nil {
		a.Metrics.ObserveSlots(string(res.Reason), len(res.Slots))
	}
	return res, nil
}

func (a *App) slotsFor(date time.Time, durationMinutes int, week []availability.WorkingHours, busy []availability.BusyInterval) (availability.Result, error) {
	today := a.today()
	switch {
	case date.Before(today):
		return a.Engine.GenerateAfter(date, durationMinutes, week, busy, availability.Clock(24*60))
	case availability.SameDate(date, today):
		// A start equal to the current minute has already begun.
		return a.Engine.GenerateAfter(date, durationMinutes, week, busy, availability.ClockOf(a.now()).Add(1))
	default:
		return a.Engine.Generate(date, durationMinutes, week, busy)
	}
}

func (a *App) weeklyConfig(ctx context.Context) ([]availability.WorkingHours, error) {
	rows, err := cache.Fetch(ctx, a.Cache, cache.WorkingHoursKey(), a.Hours.WeeklyConfig)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	return weekConfig(rows)
}

// busyIntervals gathers booked appointments plus the external calendar. The external source
// is advisory: when it fails the date is computed from appointments alone.
func (a *App) busyIntervals(ctx context.Context, date time.Time) ([]availability.BusyInterval, error) {
	busy, err := AppointmentBusySource{Store: a.Appointments, Cache: a.Cache}.BusyIntervals(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}
	external, err := a.externalBusy(ctx, date)
	if err != nil {
		return nil, err
	}
	return append(busy, external...), nil
}

func (a *App) externalBusy(ctx context.Context, date time.Time) ([]availability.BusyInterval, error) {
	if a.External == nil {
		return nil, nil
	}
	busy, err := a.External.BusyIntervals(ctx, date)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger().Warn("external calendar unavailable, ignoring its busy time",
			zap.String("date", availability.FormatDate(date)), zap.Error(err))
		return nil, nil
	}
	return busy, nil
}
