package app

import (
	"fmt"
	"strings"
	"time"

	"barbershop-booking/internal/availability"
)

type Service struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration"`
	Price           float64   `json:"price"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

func (s Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, availability.ErrInvalidDuration)
	}
	if s.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

// WorkingHours is the stored form of one weekday's configuration; times are "HH:MM".
type WorkingHours struct {
	ID        int64     `json:"id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	IsClosed  bool      `json:"is_closed"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Config converts the row for the slot engine and validates it.
func (w WorkingHours) Config() (availability.WorkingHours, error) {
	cfg := availability.WorkingHours{DayOfWeek: w.DayOfWeek, Closed: w.IsClosed}
	var err error
	if cfg.Start, err = availability.ParseClock(w.StartTime); err != nil {
		return cfg, fmt.Errorf("%w: start_time: %w", ErrInvalidInput, err)
	}
	if cfg.End, err = availability.ParseClock(w.EndTime); err != nil {
		return cfg, fmt.Errorf("%w: end_time: %w", ErrInvalidInput, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return cfg, nil
}

func weekConfig(rows []WorkingHours) ([]availability.WorkingHours, error) {
	week := make([]availability.WorkingHours, 0, len(rows))
	for _, r := range rows {
		cfg, err := r.Config()
		if err != nil {
			return nil, err
		}
		week = append(week, cfg)
	}
	return week, nil
}

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Occupies reports whether an appointment in this status blocks its time span.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

type Appointment struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	ClientName      string    `json:"client_name"`
	ClientEmail     string    `json:"client_email,omitempty"`
	ClientPhone     string    `json:"client_phone,omitempty"`
	ServiceID       int64     `json:"service_id"`
	ServiceName     string    `json:"service_name"`
	Price           float64   `json:"price"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// BusyFromAppointments derives busy intervals, skipping appointments that do not occupy time.
// All busy data handed to the slot engine goes through here.
func BusyFromAppointments(appts []Appointment) ([]availability.BusyInterval, error) {
	busy := make([]availability.BusyInterval, 0, len(appts))
	for _, a := range appts {
		if !a.Status.Occupies() {
			continue
		}
		start, err := availability.ParseClock(a.Time)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		date, err := availability.ParseDate(a.Date)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		busy = append(busy, availability.BusyInterval{Date: date, Start: start, DurationMinutes: a.DurationMinutes})
	}
	return busy, nil
}
