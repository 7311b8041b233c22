package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/oauth2"

	"barbershop-booking/internal/cache"
)

// exclusion_violation, raised by appointments_no_overlap.
const pgExclusionViolation = "23P01"

// DBTX is the subset of *pgxpool.Pool the stores use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore implements every store interface on Postgres.
type PGStore struct {
	DB     DBTX
	Events Publisher
}

func NewPGStore(db DBTX, events Publisher) *PGStore {
	return &PGStore{DB: db, Events: events}
}

func (s *PGStore) publish(ctx context.Context, ch cache.Change) {
	if s.Events == nil {
		return
	}
	// The write already committed; a lost event only delays invalidation until the TTL.
	_ = s.Events.Publish(ctx, ch)
}

// ---- services ----

func (s *PGStore) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, name, duration_minutes, price, created_at FROM services ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Service{}
	for rows.Next() {
		var sv Service
		if err := rows.Scan(&sv.ID, &sv.Name, &sv.DurationMinutes, &sv.Price, &sv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *PGStore) GetService(ctx context.Context, id int64) (Service, error) {
	var sv Service
	err := s.DB.QueryRow(ctx, `SELECT id, name, duration_minutes, price, created_at FROM services WHERE id=$1`, id).
		Scan(&sv.ID, &sv.Name, &sv.DurationMinutes, &sv.Price, &sv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	return sv, err
}

func (s *PGStore) CreateService(ctx context.Context, sv *Service) error {
	q := `INSERT INTO services (name, duration_minutes, price) VALUES ($1,$2,$3) RETURNING id, created_at`
	if err := s.DB.QueryRow(ctx, q, sv.Name, sv.DurationMinutes, sv.Price).Scan(&sv.ID, &sv.CreatedAt); err != nil {
		return err
	}
	s.publish(ctx, cache.Change{Entity: cache.EntityServices})
	return nil
}

func (s *PGStore) UpdateService(ctx context.Context, sv *Service) error {
	q := `UPDATE services SET name=$1, duration_minutes=$2, price=$3 WHERE id=$4 RETURNING created_at`
	err := s.DB.QueryRow(ctx, q, sv.Name, sv.DurationMinutes, sv.Price, sv.ID).Scan(&sv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("service %d: %w", sv.ID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	s.publish(ctx, cache.Change{Entity: cache.EntityServices})
	return nil
}

func (s *PGStore) DeleteService(ctx context.Context, id int64) error {
	res, err := s.DB.Exec(ctx, `DELETE FROM services WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	s.publish(ctx, cache.Change{Entity: cache.EntityServices})
	return nil
}

// ---- working hours ----

func (s *PGStore) WeeklyConfig(ctx context.Context) ([]WorkingHours, error) {
	q := `SELECT id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_closed, updated_at
	      FROM working_hours ORDER BY day_of_week`
	rows, err := s.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []WorkingHours{}
	for rows.Next() {
		var w WorkingHours
		if err := rows.Scan(&w.ID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &w.IsClosed, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpsertWorkingHours writes the row for w.DayOfWeek, creating it if the day was never configured.
func (s *PGStore) UpsertWorkingHours(ctx context.Context, w *WorkingHours) error {
	q := `INSERT INTO working_hours (day_of_week, start_time, end_time, is_closed, updated_at)
	      VALUES ($1, $2::time, $3::time, $4, now())
	      ON CONFLICT (day_of_week) DO UPDATE
	      SET start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
	          is_closed=EXCLUDED.is_closed, updated_at=EXCLUDED.updated_at
	      RETURNING id, updated_at`
	if err := s.DB.QueryRow(ctx, q, w.DayOfWeek, w.StartTime, w.EndTime, w.IsClosed).Scan(&w.ID, &w.UpdatedAt); err != nil {
		return err
	}
	s.publish(ctx, cache.Change{Entity: cache.EntityWorkingHours})
	return nil
}

// ---- appointments ----

const appointmentCols = `id::text, client_id, client_name, client_email, client_phone, COALESCE(service_id, 0),
	service_name, price, to_char(date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'), duration_minutes, status, created_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a      Appointment
		status string
	)
	err := row.Scan(&a.ID, &a.ClientID, &a.ClientName, &a.ClientEmail, &a.ClientPhone, &a.ServiceID,
		&a.ServiceName, &a.Price, &a.Date, &a.Time, &a.DurationMinutes, &status, &a.CreatedAt)
	a.Status = Status(status)
	return a, err
}

func listAppointments(ctx context.Context, q querier, sql string, args ...any) ([]Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func byDateSQL() string {
	return `SELECT ` + appointmentCols + ` FROM appointments WHERE date=$1::date ORDER BY start_time`
}

// CreateAppointment serializes bookings per date with an advisory lock, re-reads the date's
// busy intervals inside the transaction and lets verify reject the slot before inserting.
// The exclusion constraint on appointments backs this up.
func (s *PGStore) CreateAppointment(ctx context.Context, a *Appointment, verify VerifyFunc) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('appointments:' || $1::text))`, a.Date); err != nil {
		return fmt.Errorf("lock date %s: %w", a.Date, err)
	}

	if verify != nil {
		existing, err := listAppointments(ctx, tx, byDateSQL(), a.Date)
		if err != nil {
			return err
		}
		busy, err := BusyFromAppointments(existing)
		if err != nil {
			return err
		}
		if err := verify(busy); err != nil {
			return err
		}
	}

	q := `INSERT INTO appointments
	      (id, client_id, client_name, client_email, client_phone, service_id, service_name, price,
	       date, start_time, duration_minutes, status)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::date,$10::time,$11,$12)
	      RETURNING created_at`
	err = tx.QueryRow(ctx, q, a.ID, a.ClientID, a.ClientName, a.ClientEmail, a.ClientPhone, a.ServiceID,
		a.ServiceName, a.Price, a.Date, a.Time, a.DurationMinutes, string(a.Status)).Scan(&a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
			return ErrSlotTaken
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.publish(ctx, cache.Change{Entity: cache.EntityAppointments, Date: a.Date})
	return nil
}

func (s *PGStore) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	a, err := scanAppointment(s.DB.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id=$1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *PGStore) CancelAppointment(ctx context.Context, id, clientID string) (Appointment, error) {
	q := `UPDATE appointments SET status='cancelled'
	      WHERE id=$1::uuid AND status='scheduled' AND ($2 = '' OR client_id = $2)
	      RETURNING ` + appointmentCols
	a, err := scanAppointment(s.DB.QueryRow(ctx, q, id, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, s.explainNoTransition(ctx, id, clientID)
	}
	if err != nil {
		return Appointment{}, err
	}
	s.publish(ctx, cache.Change{Entity: cache.EntityAppointments, Date: a.Date})
	return a, nil
}

func (s *PGStore) SetAppointmentStatus(ctx context.Context, id string, status Status) (Appointment, error) {
	q := `UPDATE appointments SET status=$2 WHERE id=$1::uuid AND status='scheduled' RETURNING ` + appointmentCols
	a, err := scanAppointment(s.DB.QueryRow(ctx, q, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, s.explainNoTransition(ctx, id, "")
	}
	if err != nil {
		return Appointment{}, err
	}
	s.publish(ctx, cache.Change{Entity: cache.EntityAppointments, Date: a.Date})
	return a, nil
}

// explainNoTransition works out why a status update matched no row.
func (s *PGStore) explainNoTransition(ctx context.Context, id, clientID string) error {
	current, err := s.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if clientID != "" && current.ClientID != clientID {
		return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	if current.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	return ErrInvalidTransition
}

func (s *PGStore) ListAppointmentsByDate(ctx context.Context, date string) ([]Appointment, error) {
	return listAppointments(ctx, s.DB, byDateSQL(), date)
}

func (s *PGStore) ListAppointmentsByClient(ctx context.Context, clientID string) ([]Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments WHERE client_id=$1 ORDER BY date, start_time`
	return listAppointments(ctx, s.DB, q, clientID)
}

func (s *PGStore) ListAppointmentsBefore(ctx context.Context, date string) ([]Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments WHERE date < $1::date ORDER BY date DESC, start_time DESC`
	return listAppointments(ctx, s.DB, q, date)
}

func (s *PGStore) ListUpcomingAppointments(ctx context.Context, date, clock string, limit int) ([]Appointment, error) {
	q := `SELECT ` + appointmentCols + ` FROM appointments
	      WHERE status <> 'cancelled' AND (date > $1::date OR (date = $1::date AND start_time > $2::time))
	      ORDER BY date, start_time LIMIT $3`
	return listAppointments(ctx, s.DB, q, date, clock, limit)
}

// ---- calendar token ----

func (s *PGStore) SaveCalendarToken(ctx context.Context, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `INSERT INTO calendar_tokens (id, token, updated_at) VALUES (1, $1::jsonb, now())
	      ON CONFLICT (id) DO UPDATE SET token=EXCLUDED.token, updated_at=EXCLUDED.updated_at`, string(raw))
	return err
}

// LoadCalendarToken returns nil without error when no calendar was ever connected.
func (s *PGStore) LoadCalendarToken(ctx context.Context) (*oauth2.Token, error) {
	var raw string
	err := s.DB.QueryRow(ctx, `SELECT token::text FROM calendar_tokens WHERE id=1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decode calendar token: %w", err)
	}
	return &tok, nil
}
