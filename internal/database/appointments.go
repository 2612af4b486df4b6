package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapis/internal/calendar"
	"zapis/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var appointmentColumns = []string{
	"id", "user_id", "first_name", "last_name", "phone",
	"service_id", "service_name", "date", "time", "duration_minutes",
	"price", "currency", "notes", "status", "reminded_at",
	"created_at", "updated_at",
}

// CreateAppointment inserts an active appointment. The partial unique index on
// (service_id, date, time) makes the conflict check part of the insert itself.
func (db *DB) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = models.AppointmentStatusActive
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `INSERT INTO appointments (
                id, user_id, first_name, last_name, phone,
                service_id, service_name, date, time, duration_minutes,
                price, currency, notes, status, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		a.ID, a.UserID, a.FirstName, a.LastName, a.Phone,
		a.ServiceID, a.ServiceName, a.Date, a.Time, a.DurationMinutes,
		a.Price, a.Currency, a.Notes, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	db.logger.Debug().
		Str("appointment_id", a.ID).
		Str("service_id", a.ServiceID).
		Str("date", a.Date.String()).
		Str("time", a.Time.String()).
		Msg("Appointment created")
	return nil
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row, err := db.queryRowContext(ctx, selectAppointments().Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAppointmentsByUser returns the user's active appointments, soonest first.
func (db *DB) ListAppointmentsByUser(ctx context.Context, userID string) ([]*models.Appointment, error) {
	return db.listAppointments(ctx, selectActive().
		Where(sq.Eq{"user_id": userID}).
		OrderBy("date ASC", "time ASC"))
}

// ListAppointmentsByDate returns every active appointment of the day.
func (db *DB) ListAppointmentsByDate(ctx context.Context, day calendar.Day) ([]*models.Appointment, error) {
	return db.listAppointments(ctx, selectActive().
		Where(sq.Eq{"date": day}).
		OrderBy("time ASC", "service_id ASC"))
}

func (db *DB) ListAppointmentsByServiceDate(ctx context.Context, serviceID string, day calendar.Day) ([]*models.Appointment, error) {
	return db.listAppointments(ctx, selectActive().
		Where(sq.Eq{"service_id": serviceID, "date": day}).
		OrderBy("time ASC"))
}

// ListDueForReminder returns active appointments of the day that have not
// been reminded yet.
func (db *DB) ListDueForReminder(ctx context.Context, day calendar.Day) ([]*models.Appointment, error) {
	return db.listAppointments(ctx, selectActive().
		Where(sq.Eq{"date": day, "reminded_at": nil}).
		OrderBy("time ASC", "id ASC"))
}

func (db *DB) MarkReminded(ctx context.Context, id string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE appointments SET reminded_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark appointment reminded: %w", err)
	}
	return nil
}

// CancelAppointment cancels the user's active appointment. It reports false
// when there is nothing to cancel.
func (db *DB) CancelAppointment(ctx context.Context, id, userID string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, updated_at = ?
         WHERE id = ? AND user_id = ? AND status = ?`,
		models.AppointmentStatusCancelled, time.Now().UTC(), id, userID, models.AppointmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	return affected(res)
}

// AdminCancelAppointment cancels an active appointment regardless of owner.
func (db *DB) AdminCancelAppointment(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.AppointmentStatusCancelled, time.Now().UTC(), id, models.AppointmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func selectAppointments() sq.SelectBuilder {
	return sq.Select(appointmentColumns...).From("appointments")
}

func selectActive() sq.SelectBuilder {
	return selectAppointments().Where(sq.Eq{"status": models.AppointmentStatusActive})
}

func (db *DB) listAppointments(ctx context.Context, b sq.SelectBuilder) ([]*models.Appointment, error) {
	rows, err := db.queryContext(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var result []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a          models.Appointment
		remindedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.FirstName, &a.LastName, &a.Phone,
		&a.ServiceID, &a.ServiceName, &a.Date, &a.Time, &a.DurationMinutes,
		&a.Price, &a.Currency, &a.Notes, &a.Status, &remindedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if remindedAt.Valid {
		t := remindedAt.Time
		a.RemindedAt = &t
	}
	return &a, nil
}
