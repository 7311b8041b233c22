package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/notify"
)

const upcomingLimit = 5

type BookingRequest struct {
	ServiceID int64  `json:"service_id" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Time      string `json:"time" binding:"required"`
	Phone     string `json:"phone"`
}

// Book reserves a slot for the caller. The slot is checked against the engine once more inside
// the storage transaction, so a start that was offered a moment ago but got taken since fails
// with ErrSlotUnavailable or ErrSlotTaken.
func (a *App) Book(ctx context.Context, p Principal, req BookingRequest) (Appointment, error) {
	date, err := availability.ParseDate(req.Date)
	if err != nil {
		return Appointment{}, err
	}
	start, err := availability.ParseClock(req.Time)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if p.ID == "" {
		return Appointment{}, ErrForbidden
	}

	svc, err := a.Services.GetService(ctx, req.ServiceID)
	if err != nil {
		return Appointment{}, err
	}
	external, err := a.externalBusy(ctx, date)
	if err != nil {
		return Appointment{}, err
	}

	// Hours are read past the cache here: a day closed a moment ago must refuse the booking.
	verify := func(busy []availability.BusyInterval) error {
		rows, err := a.Hours.WeeklyConfig(ctx)
		if err != nil {
			return fmt.Errorf("load working hours: %w", err)
		}
		week, err := weekConfig(rows)
		if err != nil {
			return err
		}
		res, err := a.slotsFor(date, svc.DurationMinutes, week, append(busy, external...))
		if err != nil {
			return err
		}
		if !res.Offers(start.String()) {
			return fmt.Errorf("%w: %s %s (%s)", ErrSlotUnavailable, res.Date, start, res.Reason)
		}
		return nil
	}

	phone := req.Phone
	if phone == "" {
		phone = p.Phone
	}
	appt := Appointment{
		ID:              uuid.NewString(),
		ClientID:        p.ID,
		ClientName:      p.Name,
		ClientEmail:     p.Email,
		ClientPhone:     phone,
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		Price:           svc.Price,
		Date:            availability.FormatDate(date),
		Time:            start.String(),
		DurationMinutes: svc.DurationMinutes,
		Status:          StatusScheduled,
	}

	if err := a.Appointments.CreateAppointment(ctx, &appt, verify); err != nil {
		a.observeBooking(err)
		return Appointment{}, err
	}
	a.observeBooking(nil)
	a.logger().Info("appointment booked",
		zap.String("id", appt.ID), zap.String("date", appt.Date), zap.String("time", appt.Time),
		zap.String("service", appt.ServiceName))

	if a.Notifier != nil {
		a.Notifier.Dispatch(notify.BookingCreated{
			Name:    appt.ClientName,
			Phone:   appt.ClientPhone,
			Email:   appt.ClientEmail,
			Date:    appt.Date,
			Time:    appt.Time,
			Service: appt.ServiceName,
		})
	}
	return appt, nil
}

func (a *App) observeBooking(err error) {
	if a.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		a.Metrics.ObserveBooking("created")
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrSlotUnavailable):
		a.Metrics.ObserveBooking("conflict")
	default:
		a.Metrics.ObserveBooking("error")
	}
}

// Cancel frees an appointment's slot. Clients may only cancel their own appointments; staff may
// cancel any.
func (a *App) Cancel(ctx context.Context, p Principal, id string) (Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	owner := p.ID
	if p.IsStaff() {
		owner = ""
	}
	appt, err := a.Appointments.CancelAppointment(ctx, id, owner)
	if err != nil {
		return Appointment{}, err
	}
	a.logger().Info("appointment cancelled", zap.String("id", id), zap.String("by", p.ID))
	return appt, nil
}

// UpdateStatus moves a scheduled appointment to cancelled or completed.
func (a *App) UpdateStatus(ctx context.Context, id string, status Status) (Appointment, error) {
	if status != StatusCancelled && status != StatusCompleted {
		return Appointment{}, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return a.Appointments.SetAppointmentStatus(ctx, id, status)
}

func (a *App) Complete(ctx context.Context, id string) (Appointment, error) {
	return a.UpdateStatus(ctx, id, StatusCompleted)
}

func (a *App) MyAppointments(ctx context.Context, p Principal) ([]Appointment, error) {
	appts, err := a.Appointments.ListAppointmentsByClient(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	sortChronological(appts)
	return appts, nil
}

type Dashboard struct {
	Date         string        `json:"date"`
	Appointments []Appointment `json:"appointments"`
	Booked       int           `json:"booked"`
	Earnings     float64       `json:"earnings"`
	Upcoming     []Appointment `json:"upcoming"`
}

// Dashboard summarizes one day for staff. The agenda, booked count and earnings cover every
// appointment that was not cancelled.
func (a *App) Dashboard(ctx context.Context, date time.Time) (Dashboard, error) {
	day := availability.FormatDate(date)
	all, err := a.Appointments.ListAppointmentsByDate(ctx, day)
	if err != nil {
		return Dashboard{}, err
	}
	agenda := make([]Appointment, 0, len(all))
	for _, appt := range all {
		if appt.Status.Occupies() {
			agenda = append(agenda, appt)
		}
	}
	sortChronological(agenda)

	now := a.now()
	upcoming, err := a.Appointments.ListUpcomingAppointments(ctx,
		availability.FormatDate(a.today()), availability.ClockOf(now).String(), upcomingLimit)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Date: day, Appointments: agenda, Upcoming: upcoming}
	for _, appt := range agenda {
		d.Booked++
		d.Earnings += appt.Price
	}
	return d, nil
}

type History struct {
	Appointments []Appointment `json:"appointments"`
	Count        int           `json:"count"`
	Revenue      float64       `json:"revenue"`
}

// History lists appointments on days before today, newest first, optionally limited to one date.
// Count and Revenue cover the appointments that were not cancelled.
func (a *App) History(ctx context.Context, filter string) (History, error) {
	if filter != "" {
		if _, err := availability.ParseDate(filter); err != nil {
			return History{}, err
		}
	}
	past, err := a.Appointments.ListAppointmentsBefore(ctx, availability.FormatDate(a.today()))
	if err != nil {
		return History{}, err
	}

	h := History{Appointments: []Appointment{}}
	for _, appt := range past {
		if filter != "" && appt.Date != filter {
			continue
		}
		h.Appointments = append(h.Appointments, appt)
		if appt.Status.Occupies() {
			h.Count++
			h.Revenue += appt.Price
		}
	}
	return h, nil
}

func sortChronological(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
}
