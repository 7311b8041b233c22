package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/cache"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrSlotTaken         = errors.New("slot already booked")
	ErrSlotUnavailable   = errors.New("slot not available")
	ErrAlreadyCancelled  = errors.New("appointment already cancelled")
	ErrInvalidTransition = errors.New("appointment is not scheduled")
	ErrForbidden         = errors.New("forbidden")
	ErrCalendarDisabled  = errors.New("google calendar not configured")
)

type ServiceStore interface {
	ListServices(ctx context.Context) ([]Service, error)
	GetService(ctx context.Context, id int64) (Service, error)
	CreateService(ctx context.Context, s *Service) error
	UpdateService(ctx context.Context, s *Service) error
	DeleteService(ctx context.Context, id int64) error
}

type WorkingHoursStore interface {
	WeeklyConfig(ctx context.Context) ([]WorkingHours, error)
	UpsertWorkingHours(ctx context.Context, w *WorkingHours) error
}

// VerifyFunc is called inside the booking transaction with the date's busy intervals as
// currently committed; a non-nil error aborts the insert.
type VerifyFunc func(busy []availability.BusyInterval) error

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *Appointment, verify VerifyFunc) error
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	// CancelAppointment cancels a scheduled appointment. A non-empty clientID restricts the
	// cancel to that client's own appointments.
	CancelAppointment(ctx context.Context, id, clientID string) (Appointment, error)
	SetAppointmentStatus(ctx context.Context, id string, status Status) (Appointment, error)
	ListAppointmentsByDate(ctx context.Context, date string) ([]Appointment, error)
	ListAppointmentsByClient(ctx context.Context, clientID string) ([]Appointment, error)
	ListAppointmentsBefore(ctx context.Context, date string) ([]Appointment, error)
	ListUpcomingAppointments(ctx context.Context, date, clock string, limit int) ([]Appointment, error)
}

type CalendarTokenStore interface {
	SaveCalendarToken(ctx context.Context, tok *oauth2.Token) error
	LoadCalendarToken(ctx context.Context) (*oauth2.Token, error)
}

// BusyIntervalsSource yields the occupied spans of one date.
type BusyIntervalsSource interface {
	BusyIntervals(ctx context.Context, date time.Time) ([]availability.BusyInterval, error)
}

// Publisher receives change events after mutations; *cache.Cache implements it.
type Publisher interface {
	Publish(ctx context.Context, ch cache.Change) error
}

// AppointmentBusySource reads busy intervals from booked appointments through the cache.
type AppointmentBusySource struct {
	Store AppointmentStore
	Cache *cache.Cache
}

func (s AppointmentBusySource) BusyIntervals(ctx context.Context, date time.Time) ([]availability.BusyInterval, error) {
	day := availability.FormatDate(date)
	return cache.Fetch(ctx, s.Cache, cache.BusyKey(day), func(ctx context.Context) ([]availability.BusyInterval, error) {
		appts, err := s.Store.ListAppointmentsByDate(ctx, day)
		if err != nil {
			return nil, err
		}
		return BusyFromAppointments(appts)
	})
}

// MultiSource concatenates the intervals of several sources; nil entries are skipped.
type MultiSource []BusyIntervalsSource

func (m MultiSource) BusyIntervals(ctx context.Context, date time.Time) ([]availability.BusyInterval, error) {
	var all []availability.BusyInterval
	for _, src := range m {
		if src == nil {
			continue
		}
		busy, err := src.BusyIntervals(ctx, date)
		if err != nil {
			return nil, err
		}
		all = append(all, busy...)
	}
	return all, nil
}
