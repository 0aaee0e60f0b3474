package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/appointly/assistant/internal/assistant"
)

// DB is the subset of pgxpool.Pool the repository needs; tests substitute a
// mock.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("appointments: database required")
	}
	return &PostgresRepository{db: db}
}

// Add books an appointment. Re-booking an identical slot is treated as
// success, and the slot is recorded as an availability window for the
// person's weekday.
func (r *PostgresRepository) Add(ctx context.Context, person, date, timeStr string) error {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return fmt.Errorf("appointments: unparseable date %q", date)
	}
	normalized, err := r.resolveTime(ctx, person, date, timeStr)
	if err != nil {
		return err
	}

	var existing int
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE person = $1 AND appointment_date = $2::date AND appointment_time = $3::time`,
		person, date, normalized,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("appointments: existence check failed: %w", err)
	}
	if existing > 0 {
		return nil
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO appointments (person, appointment_date, appointment_time)
		 VALUES ($1, $2::date, $3::time)`,
		person, date, normalized,
	); err != nil {
		return fmt.Errorf("appointments: insert failed: %w", err)
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO availability (person, day_of_week, start_time, end_time)
		 VALUES ($1, $2, $3::time, $3::time)
		 ON CONFLICT (person, day_of_week, start_time) DO NOTHING`,
		person, int(day.Weekday()), normalized,
	); err != nil {
		// The booking itself succeeded; the window record is best effort.
		return nil
	}
	return nil
}

// Cancel removes a booked appointment. With no time given every appointment
// for the person on that date matches.
func (r *PostgresRepository) Cancel(ctx context.Context, person, date, timeStr string) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if timeStr != "" && timeStr != assistant.FirstAvailable {
		normalized, terr := normalizeTime(timeStr)
		if terr != nil {
			return terr
		}
		tag, err = r.db.Exec(ctx,
			`DELETE FROM appointments
			 WHERE person = $1 AND appointment_date = $2::date AND appointment_time = $3::time`,
			person, date, normalized)
	} else {
		tag, err = r.db.Exec(ctx,
			`DELETE FROM appointments
			 WHERE person = $1 AND appointment_date = $2::date`,
			person, date)
	}
	if err != nil {
		return fmt.Errorf("appointments: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckAvailability reports whether the slot is open: not already booked,
// and either inside an explicit availability window or within default
// business hours.
func (r *PostgresRepository) CheckAvailability(ctx context.Context, person, date, timeStr string) (bool, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return false, fmt.Errorf("appointments: unparseable date %q", date)
	}
	normalized, err := normalizeTime(timeStr)
	if err != nil {
		return false, err
	}

	var booked int
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE person = $1 AND appointment_date = $2::date AND appointment_time = $3::time`,
		person, date, normalized,
	).Scan(&booked)
	if err != nil {
		return false, fmt.Errorf("appointments: booked check failed: %w", err)
	}
	if booked > 0 {
		return false, nil
	}

	var windows int
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM availability
		 WHERE person = $1 AND day_of_week = $2
		   AND $3::time BETWEEN start_time AND end_time`,
		person, int(day.Weekday()), normalized,
	).Scan(&windows)
	if err != nil {
		return false, fmt.Errorf("appointments: window check failed: %w", err)
	}
	if windows > 0 {
		return true, nil
	}
	return withinBusinessHours(day, normalized), nil
}

// AvailableTimes lists open slots for the person on the date, in 12-hour
// display form.
func (r *PostgresRepository) AvailableTimes(ctx context.Context, person, date string) ([]string, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: unparseable date %q", date)
	}

	rows, err := r.db.Query(ctx,
		`SELECT to_char(appointment_time, 'HH24:MI') FROM appointments
		 WHERE person = $1 AND appointment_date = $2::date`,
		person, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: booked lookup failed: %w", err)
	}
	booked := make(map[string]bool)
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			rows.Close()
			return nil, fmt.Errorf("appointments: booked scan failed: %w", err)
		}
		booked[slot] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: booked rows failed: %w", err)
	}

	slots, err := r.windowSlots(ctx, person, day)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return nil, nil
		}
		slots = businessHours
	}

	var out []string
	for _, slot := range slots {
		if !booked[slot] {
			out = append(out, displayTime(slot))
		}
	}
	return out, nil
}

// windowSlots expands the person's explicit availability windows for the
// weekday into hourly HH:MM slots.
func (r *PostgresRepository) windowSlots(ctx context.Context, person string, day time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		 FROM availability
		 WHERE person = $1 AND day_of_week = $2
		 ORDER BY start_time`,
		person, int(day.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("appointments: window lookup failed: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var slots []string
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("appointments: window scan failed: %w", err)
		}
		st, err1 := time.Parse("15:04", start)
		en, err2 := time.Parse("15:04", end)
		if err1 != nil || err2 != nil {
			continue
		}
		for t := st; !t.After(en); t = t.Add(time.Hour) {
			slot := t.Format("15:04")
			if !seen[slot] {
				seen[slot] = true
				slots = append(slots, slot)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: window rows failed: %w", err)
	}
	return slots, nil
}

// List returns appointments filtered by person and/or date, soonest first.
func (r *PostgresRepository) List(ctx context.Context, person, date string) ([]assistant.Appointment, error) {
	query := `SELECT person, to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI')
	          FROM appointments`
	var (
		conditions []string
		args       []any
	)
	if person != "" {
		args = append(args, person)
		conditions = append(conditions, fmt.Sprintf("person = $%d", len(args)))
	}
	if date != "" {
		args = append(args, date)
		conditions = append(conditions, fmt.Sprintf("appointment_date = $%d::date", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY appointment_date, appointment_time"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	defer rows.Close()

	var out []assistant.Appointment
	for rows.Next() {
		var a assistant.Appointment
		if err := rows.Scan(&a.Person, &a.Date, &a.Time); err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows failed: %w", err)
	}
	return out, nil
}

// resolveTime maps the flexible-time sentinel onto the first open slot of
// the requested day before normalizing.
func (r *PostgresRepository) resolveTime(ctx context.Context, person, date, timeStr string) (string, error) {
	if timeStr != assistant.FirstAvailable {
		return normalizeTime(timeStr)
	}
	slots, err := r.AvailableTimes(ctx, person, date)
	if err != nil || len(slots) == 0 {
		return businessHours[0], nil
	}
	return normalizeTime(slots[0])
}
