package app

import (
	"time"

	"go.uber.org/zap"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/cache"
	"barbershop-booking/internal/metrics"
	"barbershop-booking/internal/notify"
)

// Notifier delivers booking notifications without blocking the caller.
type Notifier interface {
	Dispatch(ev notify.BookingCreated)
}

// App ties the stores, the slot engine and the side channels together. Handlers are methods on it.
type App struct {
	Services     ServiceStore
	Hours        WorkingHoursStore
	Appointments AppointmentStore
	// External busy time besides booked appointments, e.g. the barber's Google Calendar. Optional.
	External BusyIntervalsSource
	Calendar *CalendarConnector

	Cache    *cache.Cache
	Engine   availability.Engine
	Location *time.Location
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	Now func() time.Time
}

// New builds an App backed by a single PGStore.
func New(store *PGStore, c *cache.Cache, engine availability.Engine, loc *time.Location, logger *zap.Logger) *App {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		Services:     store,
		Hours:        store,
		Appointments: store,
		Cache:        c,
		Engine:       engine,
		Location:     loc,
		Logger:       logger,
		Now:          time.Now,
	}
}

func (a *App) now() time.Time {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	if a.Now == nil {
		return time.Now().In(loc)
	}
	return a.Now().In(loc)
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// today returns the business-local date at midnight UTC, the form availability dates use.
func (a *App) today() time.Time {
	n := a.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}
