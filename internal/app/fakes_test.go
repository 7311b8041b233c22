package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/notify"
)

// memStore keeps everything in memory and enforces the no-overlap rule the way the
// exclusion constraint does.
type memStore struct {
	mu       sync.Mutex
	services map[int64]Service
	hours    []WorkingHours
	appts    []Appointment
	nextID   int64

	// hoursMu is separate so verify callbacks can read hours while mu is held.
	hoursMu sync.Mutex
}

func newMemStore() *memStore {
	m := &memStore{services: map[int64]Service{}}
	m.hours = append(m.hours, WorkingHours{DayOfWeek: 0, StartTime: "09:00", EndTime: "19:00", IsClosed: true})
	for d := 1; d <= 6; d++ {
		m.hours = append(m.hours, WorkingHours{DayOfWeek: d, StartTime: "09:00", EndTime: "19:00"})
	}
	return m
}

func (m *memStore) ListServices(context.Context) ([]Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Service{}
	for id := int64(1); id <= m.nextID; id++ {
		if s, ok := m.services[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetService(_ context.Context, id int64) (Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return Service{}, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *memStore) CreateService(_ context.Context, s *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.services[s.ID] = *s
	return nil
}

func (m *memStore) UpdateService(_ context.Context, s *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[s.ID]; !ok {
		return fmt.Errorf("service %d: %w", s.ID, ErrNotFound)
	}
	m.services[s.ID] = *s
	return nil
}

func (m *memStore) DeleteService(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	delete(m.services, id)
	return nil
}

func (m *memStore) WeeklyConfig(context.Context) ([]WorkingHours, error) {
	m.hoursMu.Lock()
	defer m.hoursMu.Unlock()
	return append([]WorkingHours(nil), m.hours...), nil
}

func (m *memStore) UpsertWorkingHours(_ context.Context, w *WorkingHours) error {
	m.hoursMu.Lock()
	defer m.hoursMu.Unlock()
	for i := range m.hours {
		if m.hours[i].DayOfWeek == w.DayOfWeek {
			m.hours[i] = *w
			return nil
		}
	}
	m.hours = append(m.hours, *w)
	return nil
}

func (m *memStore) byDate(date string) []Appointment {
	var out []Appointment
	for _, a := range m.appts {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) CreateAppointment(_ context.Context, a *Appointment, verify VerifyFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := BusyFromAppointments(m.byDate(a.Date))
	if err != nil {
		return err
	}
	if verify != nil {
		if err := verify(existing); err != nil {
			return err
		}
	}
	start := availability.MustClock(a.Time)
	slot := availability.Interval{Start: start, End: start.Add(a.DurationMinutes)}
	for _, b := range existing {
		if slot.Overlaps(b.Interval()) {
			return ErrSlotTaken
		}
	}
	a.CreatedAt = time.Now()
	m.appts = append(m.appts, *a)
	return nil
}

func (m *memStore) find(id string) (int, bool) {
	for i, a := range m.appts {
		if a.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (m *memStore) GetAppointment(_ context.Context, id string) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(id)
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return m.appts[i], nil
}

func (m *memStore) CancelAppointment(_ context.Context, id, clientID string) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(id)
	if !ok || (clientID != "" && m.appts[i].ClientID != clientID) {
		return Appointment{}, ErrNotFound
	}
	switch m.appts[i].Status {
	case StatusCancelled:
		return Appointment{}, ErrAlreadyCancelled
	case StatusCompleted:
		return Appointment{}, ErrInvalidTransition
	}
	m.appts[i].Status = StatusCancelled
	return m.appts[i], nil
}

func (m *memStore) SetAppointmentStatus(_ context.Context, id string, status Status) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(id)
	if !ok {
		return Appointment{}, ErrNotFound
	}
	switch m.appts[i].Status {
	case StatusCancelled:
		return Appointment{}, ErrAlreadyCancelled
	case StatusCompleted:
		return Appointment{}, ErrInvalidTransition
	}
	m.appts[i].Status = status
	return m.appts[i], nil
}

func (m *memStore) ListAppointmentsByDate(_ context.Context, date string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byDate(date), nil
}

func (m *memStore) ListAppointmentsByClient(_ context.Context, clientID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.ClientID == clientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListAppointmentsBefore(_ context.Context, date string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.Date < date {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListUpcomingAppointments(_ context.Context, date, clock string, limit int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.Status.Occupies() && (a.Date > date || (a.Date == date && a.Time > clock)) {
			out = append(out, a)
		}
	}
	sortChronological(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// put inserts an appointment bypassing every check.
func (m *memStore) put(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts = append(m.appts, a)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.BookingCreated
}

func (n *recordingNotifier) Dispatch(ev notify.BookingCreated) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

type staticBusy struct {
	busy []availability.BusyInterval
	err  error
}

func (s staticBusy) BusyIntervals(context.Context, time.Time) ([]availability.BusyInterval, error) {
	return s.busy, s.err
}

// testNow is Tuesday 2026-01-27 08:00 in São Paulo; the default booking date is the day after.
var testNow = time.Date(2026, 1, 27, 8, 0, 0, 0, saoPaulo())

func saoPaulo() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		panic(err)
	}
	return loc
}

func newTestApp(store *memStore) *App {
	return &App{
		Services:     store,
		Hours:        store,
		Appointments: store,
		Engine:       availability.Engine{},
		Location:     saoPaulo(),
		Logger:       zap.NewNop(),
		Now:          func() time.Time { return testNow },
	}
}
